package attendance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
)

const (
	RefCodeMaxLen      = 32
	refCodeBaseMaxLen  = 28
	rollPartLen        = 4
	randomSuffixBytes  = 3
	defaultMaxSuffixes = 999
	defaultRandomTries = 8
)

type RefCodeInput struct {
	EventID   int64
	SessionID int64
	StudentID int64
	RollNo    string
	// RecordID is excluded from the uniqueness check so re-saving a record
	// does not collide with itself.
	RecordID int64
	// Existing is returned as-is when set.
	Existing string
}

// CodeExistsFunc reports whether code is used by a record other than excludeRecordID.
type CodeExistsFunc func(ctx context.Context, code string, excludeRecordID int64) (bool, error)

type RefCodeGenerator struct {
	Exists            CodeExistsFunc
	MaxSuffixAttempts int
	RandomAttempts    int
	// OnCollision is called for every taken candidate.
	OnCollision func()

	randomSuffix func() (string, error)
}

// RefCodeBase derives the deterministic part of a reference code.
func RefCodeBase(in RefCodeInput) string {
	roll := rollPart(in.RollNo)
	if roll == "" {
		roll = trailingDigits(in.StudentID, rollPartLen)
	}
	base := strings.ToUpper(trailingDigits(in.EventID, 2) + trailingDigits(in.SessionID, 2) + roll)
	base = truncate(base, refCodeBaseMaxLen)
	if !isASCIILetter(base[0]) {
		base = truncate(string(prefixLetter(in.EventID, in.SessionID, in.StudentID))+base, refCodeBaseMaxLen)
	}
	return base
}

func (g RefCodeGenerator) Generate(ctx context.Context, in RefCodeInput) (string, error) {
	if in.Existing != "" {
		return in.Existing, nil
	}
	base := RefCodeBase(in)

	maxSuffixes := g.MaxSuffixAttempts
	if maxSuffixes <= 0 {
		maxSuffixes = defaultMaxSuffixes
	}
	for n := 0; n <= maxSuffixes; n++ {
		candidate := base
		if n > 0 {
			candidate = withSuffix(base, "-"+strconv.Itoa(n))
		}
		taken, err := g.Exists(ctx, candidate, in.RecordID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		g.collision()
	}

	randomTries := g.RandomAttempts
	if randomTries <= 0 {
		randomTries = defaultRandomTries
	}
	random := g.randomSuffix
	if random == nil {
		random = randomHexSuffix
	}
	for i := 0; i < randomTries; i++ {
		suffix, err := random()
		if err != nil {
			return "", err
		}
		candidate := withSuffix(base, "-"+suffix)
		taken, err := g.Exists(ctx, candidate, in.RecordID)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		g.collision()
	}
	return "", ErrRefCodeExhausted
}

func (g RefCodeGenerator) collision() {
	if g.OnCollision != nil {
		g.OnCollision()
	}
}

func withSuffix(base, suffix string) string {
	if len(base)+len(suffix) > RefCodeMaxLen {
		base = base[:RefCodeMaxLen-len(suffix)]
	}
	return base + suffix
}

// rollPart keeps the last four ASCII alphanumerics, uppercased.
func rollPart(roll string) string {
	var kept []byte
	for i := 0; i < len(roll); i++ {
		c := roll[i]
		if isASCIILetter(c) || (c >= '0' && c <= '9') {
			kept = append(kept, c)
		}
	}
	if len(kept) > rollPartLen {
		kept = kept[len(kept)-rollPartLen:]
	}
	return strings.ToUpper(string(kept))
}

func trailingDigits(id int64, width int) string {
	if id <= 0 {
		return strings.Repeat("0", width)
	}
	s := strconv.FormatInt(id, 10)
	if len(s) > width {
		return s[len(s)-width:]
	}
	return strings.Repeat("0", width-len(s)) + s
}

func prefixLetter(ids ...int64) byte {
	for _, id := range ids {
		if id > 0 {
			return byte('A' + id%26)
		}
	}
	return 'A'
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func randomHexSuffix() (string, error) {
	buf := make([]byte, randomSuffixBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(buf)), nil
}

// NormalizeRefCode prepares user input for an exact, case-insensitive lookup.
func NormalizeRefCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
