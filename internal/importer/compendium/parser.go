package compendium

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

var fieldLine = regexp.MustCompile(`^(\p{L}+)\s*(?:\(([^)]*)\))?\s*:\s*(.*)$`)

// ParseBlocks splits compendium text into stat blocks. Blocks are separated
// by blank lines; the first line of a block is the spell name.
//
// Postcondition: every returned block has a non-empty Title.
func ParseBlocks(file string, data []byte) ([]StatBlock, error) {
	var (
		blocks  []StatBlock
		current *StatBlock
		last    string
	)
	flush := func() {
		if current != nil {
			blocks = append(blocks, *current)
			current = nil
		}
		last = ""
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			flush()
			continue
		}
		if current == nil {
			current = &StatBlock{
				Title:      line,
				Fields:     map[string]string{},
				Qualifiers: map[string]string{},
				File:       file,
				Line:       lineNo,
			}
			continue
		}
		if m := fieldLine.FindStringSubmatch(line); m != nil && knownFields[m[1]] {
			last = m[1]
			current.Fields[last] = m[3]
			if m[2] != "" {
				current.Qualifiers[last] = strings.TrimSpace(m[2])
			}
			continue
		}
		if last == "" {
			return nil, fmt.Errorf("%s:%d: text before the first field of %q", file, lineNo, current.Title)
		}
		current.Fields[last] = strings.TrimSpace(current.Fields[last] + " " + line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	flush()
	return blocks, nil
}
