package rpc

import (
	"errors"
	"fmt"
	"regexp"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/onchainwatch/logindexer/internal/common"
	pkgrpc "github.com/onchainwatch/logindexer/pkg/rpc"
)

// rangeTooWidePatterns lists provider error-message substrings known to mean
// "refused: result set too large". Implementations may extend this list
// (spec §6.1).
var rangeTooWidePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)query returned more than \d+ results`),
	regexp.MustCompile(`(?i)log response size exceeded`),
	regexp.MustCompile(`(?i)block range (is )?too (large|wide)`),
	regexp.MustCompile(`(?i)exceeds the range (limit|threshold)`),
}

var suggestedRangeRe = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)

// isTooManyResultsError checks whether err is an RPC DataError whose
// ErrorData matches a known range-too-wide provider message.
func isTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr gethrpc.DataError
	if !errors.As(err, &dataErr) {
		return false, ""
	}

	errData := fmt.Sprintf("%v", dataErr.ErrorData())
	for _, pattern := range rangeTooWidePatterns {
		if pattern.MatchString(errData) {
			return true, errData
		}
	}
	return false, errData
}

// parseSuggestedBlockRange extracts a provider-suggested [from, to] hex range
// from an error message, e.g.
// "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func parseSuggestedBlockRange(msg string) (fromBlock, toBlock uint64, ok bool) {
	if msg == "" {
		return 0, 0, false
	}

	const expectedMatches = 3 // full match + 2 groups
	matches := suggestedRangeRe.FindStringSubmatch(msg)
	if len(matches) != expectedMatches {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(&matches[1])
	to, err2 := common.ParseUint64orHex(&matches[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return from, to, true
}

// classifyRangeTooWide wraps err in a *pkgrpc.RangeTooWideError when it
// matches a known provider range-too-wide message, carrying a suggested
// replacement range when the message offered one.
func classifyRangeTooWide(err error) (*pkgrpc.RangeTooWideError, bool) {
	tooMany, msg := isTooManyResultsError(err)
	if !tooMany {
		return nil, false
	}

	rte := &pkgrpc.RangeTooWideError{Err: err}
	if from, to, ok := parseSuggestedBlockRange(msg); ok {
		rte.SuggestedFrom, rte.SuggestedTo, rte.HasSuggestion = from, to, true
	}
	return rte, true
}
