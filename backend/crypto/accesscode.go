// Copyright (C) 2025 timevault.app <dev@timevault.app>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"crypto/rand"
	"encoding/hex"
)

const accessCodeBytes = 16

// GenerateAccessCode returns a 32-character hex token from crypto/rand.
// Uniqueness across shares is enforced by the store's unique index, not
// here; a collision surfaces as a duplicate error on insert.
func GenerateAccessCode() string {
	buf := make([]byte, accessCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
