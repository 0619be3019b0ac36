/*
 * PENS - Copyright (C) 2025 Velivolant.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 2, and only
 * version 2 as published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program; if not, write to the Free Software
 * Foundation, Inc., 59 Temple Place, Suite 330, Boston, MA  02111-1307  USA
 */

package token

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

var errMissingAccessToken = errors.New("record has no access_token")

// Store reads and writes the persisted token record. Writes are atomic
// (temp file + rename) with owner-only permissions, so a concurrent
// reader never observes a partial record. There is no advisory lock:
// two processes refreshing at once will last-writer-win, which is safe
// because each write is a complete, self-consistent record.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load parses the record from disk. A missing file, malformed JSON, or
// an absent access_token field is a LoadError.
func (s *Store) Load() (Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Record{}, &LoadError{Path: s.Path, Err: err}
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, &LoadError{Path: s.Path, Err: err}
	}

	if rec.AccessToken == "" {
		return Record{}, &LoadError{Path: s.Path, Err: errMissingAccessToken}
	}

	return rec, nil
}

// Save replaces the record on disk atomically with 0600 permissions.
func (s *Store) Save(rec Record) error {
	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.Path)
	tmp, err := os.CreateTemp(dir, ".token-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer func() {
		if tmpName != "" {
			_ = os.Remove(tmpName)
		}
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpName, s.Path); err != nil {
		return err
	}

	tmpName = ""
	return nil
}
