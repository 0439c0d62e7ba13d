// Package obsid handles MWA observation IDs and the classification of
// user-supplied identifier tokens into obsids and job IDs.
package obsid

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Obsid is an MWA observation ID. Valid obsids have exactly 10 decimal
// digits (they are GPS seconds).
type Obsid uint64

var ErrWrongNumDigits = errors.New("not a 10 digit number")

// Validate returns v as an Obsid if it is in the valid range.
func Validate(v uint64) (Obsid, error) {
	if v < 1_000_000_000 || v >= 10_000_000_000 {
		return 0, fmt.Errorf("%w: %d", ErrWrongNumDigits, v)
	}

	return Obsid(v), nil
}

// Parse parses s as an Obsid.
func Parse(s string) (Obsid, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}

	return Validate(v)
}

func (o Obsid) String() string {
	return strconv.FormatUint(uint64(o), 10)
}

// ParseMany classifies each token as an obsid (exactly 10 decimal digits)
// or a job ID (any other integer). A non-numeric token is treated as the
// path of a file containing whitespace-delimited tokens of the same form.
func ParseMany(tokens []string) (jobIDs []int, obsids []Obsid, err error) {
	for _, tok := range tokens {
		v, parseErr := strconv.ParseUint(tok, 10, 64)
		if parseErr != nil {
			j, o, fileErr := parseFile(tok)
			if fileErr != nil {
				return nil, nil, fileErr
			}

			jobIDs = append(jobIDs, j...)
			obsids = append(obsids, o...)

			continue
		}

		if o, validErr := Validate(v); validErr == nil {
			obsids = append(obsids, o)
		} else {
			jobIDs = append(jobIDs, int(v))
		}
	}

	return jobIDs, obsids, nil
}

func parseFile(path string) (jobIDs []int, obsids []Obsid, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		for _, tok := range strings.Fields(scanner.Text()) {
			v, parseErr := strconv.ParseUint(tok, 10, 64)
			if parseErr != nil {
				return nil, nil, fmt.Errorf("%q in file %s could not be parsed as an integer", tok, path)
			}

			if o, validErr := Validate(v); validErr == nil {
				obsids = append(obsids, o)
			} else {
				jobIDs = append(jobIDs, int(v))
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}

	return jobIDs, obsids, nil
}
