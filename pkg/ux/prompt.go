// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Pick prints a numbered menu and reads a 1-based choice from r.
//
// Returns the 0-based index, or false when the answer is empty, not a
// number, out of range, or r is exhausted.
func (p *Printer) Pick(r io.Reader, title string, items []string) (int, bool) {
	if len(items) == 0 {
		return -1, false
	}
	p.Menu(title, items)
	fmt.Fprintf(p.Out, "%s ", Styles.Bold.Render(fmt.Sprintf("Pick 1-%d (enter to cancel):", len(items))))

	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return -1, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || n < 1 || n > len(items) {
		return -1, false
	}
	return n - 1, true
}
