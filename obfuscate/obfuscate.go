// Package obfuscate applies build-time transforms to Luau source: hex
// encoding of sensitive string literals, debug statement stripping, comment
// removal, and variable prefix randomization. Hex escapes are resolved by
// the Luau parser at compile time, so runtime behavior is unchanged.
package obfuscate

import (
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Config is the contents of obfuscate.toml.
type Config struct {
	Strings StringConfig `toml:"strings"`
	Debug   DebugConfig  `toml:"debug"`
	Minify  MinifyConfig `toml:"minify"`
}

// StringConfig lists string literals to replace with hex escape sequences.
type StringConfig struct {
	Encode []string `toml:"encode"`
}

// DebugConfig lists line patterns removed from the output entirely.
type DebugConfig struct {
	StripPatterns []string `toml:"strip_patterns"`
}

// MinifyConfig controls comment removal.
type MinifyConfig struct {
	StripComments      bool `toml:"strip_comments"`
	StripBlockComments bool `toml:"strip_block_comments"`
}

// DefaultConfig covers the API names most commonly flagged by naive string
// scanners, plus the debug prefixes this toolchain emits.
func DefaultConfig() Config {
	return Config{
		Strings: StringConfig{
			Encode: []string{
				"getfenv",
				"setfenv",
				"loadstring",
				"InsertService",
				"LoadStringEnabled",
				"LoadAsset",
				"HttpService",
				"require",
			},
		},
		Debug: DebugConfig{
			StripPatterns: []string{
				`^\s*print\s*\(\s*"\[RbxSync`,
				`^\s*print\s*\(\s*"\[DEBUG`,
				`^\s*warn\s*\(\s*"\[RbxSync`,
			},
		},
	}
}

// Result summarizes one obfuscation pass.
type Result struct {
	Source          string
	StringsEncoded  int
	DebugStripped   int
	CommentsRemoved int
}

// TotalTransforms is the number of individual edits applied.
func (r Result) TotalTransforms() int {
	return r.StringsEncoded + r.DebugStripped + r.CommentsRemoved
}

var (
	blockCommentRe   = regexp.MustCompile(`--\[\[[\s\S]*?\]\]`)
	eqBlockCommentRe = regexp.MustCompile(`--\[=+\[[\s\S]*?\]=+\]`)
	hexPrefixRe      = regexp.MustCompile(`_0x([0-9a-fA-F]+)`)
)

// Obfuscator applies a configured transform set. The variable prefix is
// randomized per obfuscator so separate builds do not share identifiers.
type Obfuscator struct {
	cfg       Config
	varPrefix string
	stripRes  []*regexp.Regexp
}

// New compiles the config's strip patterns. Invalid patterns are skipped.
func New(cfg Config) *Obfuscator {
	var stripRes []*regexp.Regexp
	for _, pattern := range cfg.Debug.StripPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		stripRes = append(stripRes, re)
	}
	return &Obfuscator{
		cfg:       cfg,
		varPrefix: randomPrefix(),
		stripRes:  stripRes,
	}
}

// FromConfigFile loads obfuscate.toml and builds an obfuscator from it.
func FromConfigFile(path string) (*Obfuscator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return New(cfg), nil
}

// Obfuscate transforms one Luau source string.
func (o *Obfuscator) Obfuscate(source string) Result {
	var result Result

	// Debug lines first, so their strings never get hex encoded.
	lines := strings.Split(source, "\n")
	kept := lines[:0]
	for _, line := range lines {
		stripped := false
		for _, re := range o.stripRes {
			if re.MatchString(line) {
				stripped = true
				break
			}
		}
		if stripped {
			result.DebugStripped++
			continue
		}
		kept = append(kept, line)
	}
	source = strings.Join(kept, "\n")

	if o.cfg.Minify.StripBlockComments {
		source = replaceCounting(blockCommentRe, source, &result.CommentsRemoved)
		source = replaceCounting(eqBlockCommentRe, source, &result.CommentsRemoved)
	}
	if o.cfg.Minify.StripComments {
		source = stripLineComments(source, &result.CommentsRemoved)
	}

	for _, target := range o.cfg.Strings.Encode {
		source = encodeStringLiterals(source, target, &result.StringsEncoded)
	}

	result.Source = hexPrefixRe.ReplaceAllString(source, o.varPrefix+"$1")
	return result
}

// ObfuscateFile reads and transforms one file without writing it back.
func (o *Obfuscator) ObfuscateFile(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return o.Obfuscate(string(data)), nil
}

func randomPrefix() string {
	return fmt.Sprintf("_%c%c", 'a'+rand.Intn(26), 'a'+rand.Intn(26))
}

func replaceCounting(re *regexp.Regexp, source string, counter *int) string {
	*counter += len(re.FindAllStringIndex(source, -1))
	return re.ReplaceAllString(source, "")
}

// hexEscape converts a string to Luau hex escapes: "get" -> \x67\x65\x74.
func hexEscape(s string) string {
	var b strings.Builder
	for _, c := range []byte(s) {
		fmt.Fprintf(&b, `\x%02x`, c)
	}
	return b.String()
}

// encodeStringLiterals replaces quoted occurrences of target with their hex
// escaped form, for both quote styles.
func encodeStringLiterals(source, target string, counter *int) string {
	encoded := hexEscape(target)
	for _, q := range []string{`"`, `'`} {
		quoted := q + target + q
		if n := strings.Count(source, quoted); n > 0 {
			*counter += n
			source = strings.ReplaceAll(source, quoted, q+encoded+q)
		}
	}
	return source
}

// stripLineComments removes -- comments that start outside string literals.
// Block comment openers are left alone; they are handled separately.
func stripLineComments(source string, counter *int) string {
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		if strings.Contains(line, "--[[") || strings.Contains(line, "--[=[") {
			continue
		}
		if idx := commentStart(line); idx >= 0 {
			lines[i] = strings.TrimRight(line[:idx], " \t")
			*counter++
		}
	}
	return strings.Join(lines, "\n")
}

// commentStart finds the byte offset of a -- sequence outside any string
// literal, or -1.
func commentStart(line string) int {
	inString := false
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case !inString && (c == '"' || c == '\''):
			inString = true
			quote = c
		case inString && c == quote && (i == 0 || line[i-1] != '\\'):
			inString = false
		case !inString && c == '-' && i+1 < len(line) && line[i+1] == '-':
			return i
		}
	}
	return -1
}
