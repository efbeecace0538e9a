// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package gpt

import (
	"fmt"
	"io"
	"os"
)

// fileStream implements vbootkernel.Stream over a byte range of an
// already-open disk file, advancing sequentially on each Read the same
// way a real block device handle would.
type fileStream struct {
	f      *os.File
	base   int64
	limit  int64
	offset int64
}

// Read implements vbootkernel.Stream: it fills p entirely or returns an
// error, never a short read.
func (s *fileStream) Read(p []byte) error {
	if s.offset+int64(len(p)) > s.limit {
		return fmt.Errorf("gpt: read past end of partition: offset %d, len %d, limit %d", s.offset, len(p), s.limit)
	}
	if _, err := s.f.ReadAt(p, s.base+s.offset); err != nil {
		if err == io.EOF {
			return fmt.Errorf("gpt: short read at offset %d", s.offset)
		}
		return fmt.Errorf("gpt: read failed at offset %d: %w", s.offset, err)
	}
	s.offset += int64(len(p))
	return nil
}

// Close implements vbootkernel.Stream. The underlying file is owned by the
// Table the stream was opened from, so Close only drops this stream's own
// state.
func (s *fileStream) Close() error {
	return nil
}
