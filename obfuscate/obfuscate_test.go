package obfuscate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestHexEscape(t *testing.T) {
	if got := hexEscape("get"); got != `\x67\x65\x74` {
		t.Errorf("hexEscape(get) = %q", got)
	}
	if got := hexEscape("A"); got != `\x41` {
		t.Errorf("hexEscape(A) = %q", got)
	}
}

func TestEncodeDoubleQuotedString(t *testing.T) {
	o := New(DefaultConfig())
	result := o.Obfuscate(`game:GetService("InsertService")`)

	if result.StringsEncoded != 1 {
		t.Errorf("strings encoded = %d, want 1", result.StringsEncoded)
	}
	if strings.Contains(result.Source, `"InsertService"`) {
		t.Error("plain literal survived encoding")
	}
	if !strings.Contains(result.Source, `\x49\x6e\x73\x65\x72\x74`) {
		t.Errorf("hex form missing: %q", result.Source)
	}
}

func TestEncodeSingleQuotedString(t *testing.T) {
	o := New(DefaultConfig())
	result := o.Obfuscate("local f = 'getfenv'")

	if result.StringsEncoded != 1 {
		t.Errorf("strings encoded = %d, want 1", result.StringsEncoded)
	}
	if !strings.Contains(result.Source, `'\x67\x65\x74`) {
		t.Errorf("hex form missing: %q", result.Source)
	}
}

func TestBareIdentifierUntouched(t *testing.T) {
	o := New(DefaultConfig())
	// Only quoted literals are encoded; calling the function directly is
	// not a string detection target.
	result := o.Obfuscate("local env = getfenv()")
	if result.StringsEncoded != 0 {
		t.Errorf("strings encoded = %d, want 0", result.StringsEncoded)
	}
	if !strings.Contains(result.Source, "getfenv()") {
		t.Errorf("identifier mangled: %q", result.Source)
	}
}

func TestStripDebugLines(t *testing.T) {
	o := New(DefaultConfig())
	source := "local x = 5\nprint(\"[DEBUG] value\", x)\nlocal y = 10\n"
	result := o.Obfuscate(source)

	if result.DebugStripped != 1 {
		t.Errorf("debug stripped = %d, want 1", result.DebugStripped)
	}
	if strings.Contains(result.Source, "[DEBUG]") {
		t.Errorf("debug line survived: %q", result.Source)
	}
	if !strings.Contains(result.Source, "local x = 5") || !strings.Contains(result.Source, "local y = 10") {
		t.Errorf("surrounding code damaged: %q", result.Source)
	}
}

func TestStripLineComments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Minify.StripComments = true
	o := New(cfg)

	result := o.Obfuscate("local x = 1 -- counter\nlocal s = \"a -- b\"\n")
	if result.CommentsRemoved != 1 {
		t.Errorf("comments removed = %d, want 1", result.CommentsRemoved)
	}
	if strings.Contains(result.Source, "counter") {
		t.Errorf("comment survived: %q", result.Source)
	}
	if !strings.Contains(result.Source, `"a -- b"`) {
		t.Errorf("string content damaged: %q", result.Source)
	}
}

func TestStripBlockComments(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Minify.StripBlockComments = true
	o := New(cfg)

	result := o.Obfuscate("--[[ header\nblock ]]\nlocal x = 1\n--[=[ another ]=]\n")
	if result.CommentsRemoved != 2 {
		t.Errorf("comments removed = %d, want 2", result.CommentsRemoved)
	}
	if strings.Contains(result.Source, "header") || strings.Contains(result.Source, "another") {
		t.Errorf("block comment survived: %q", result.Source)
	}
	if !strings.Contains(result.Source, "local x = 1") {
		t.Errorf("code damaged: %q", result.Source)
	}
}

func TestHexPrefixRandomized(t *testing.T) {
	o := New(DefaultConfig())
	result := o.Obfuscate("local _0xab12 = 1\nreturn _0xab12\n")

	if strings.Contains(result.Source, "_0xab12") {
		t.Errorf("prefix not replaced: %q", result.Source)
	}
	// Both occurrences must rename consistently.
	if !strings.Contains(result.Source, o.varPrefix+"ab12") {
		t.Errorf("renamed variable missing: %q", result.Source)
	}
}

func TestFromConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obfuscate.toml")
	content := `
[strings]
encode = ["SecretApi"]

[minify]
strip_comments = true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	o, err := FromConfigFile(path)
	if err != nil {
		t.Fatal(err)
	}
	result := o.Obfuscate(`call("SecretApi") -- note`)
	if result.StringsEncoded != 1 || result.CommentsRemoved != 1 {
		t.Errorf("result = %+v", result)
	}

	if _, err := FromConfigFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestObfuscateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.luau")
	if err := os.WriteFile(path, []byte(`local s = "loadstring"`), 0644); err != nil {
		t.Fatal(err)
	}

	o := New(DefaultConfig())
	result, err := o.ObfuscateFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if result.StringsEncoded != 1 {
		t.Errorf("strings encoded = %d, want 1", result.StringsEncoded)
	}
	if result.TotalTransforms() != 1 {
		t.Errorf("total transforms = %d, want 1", result.TotalTransforms())
	}
}
