package arqsim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSimCfgValid(t *testing.T) {
	cfg := DefaultSimCfg()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, StopAndWait, cfg.LinkProtocol(&cfg.Links[0]))

	cfg.Links[0].Protocol = "sr"
	assert.Equal(t, SelectiveRepeat, cfg.LinkProtocol(&cfg.Links[0]))
}

func TestSimCfgRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultSimCfg()
	cfg.Protocol = GoBackN.String()
	cfg.ErrorProb = 1e-4
	cfg.Links = append(cfg.Links, LinkDesc{Name: "link1", Sender: "tx1", Receiver: "rx1", Protocol: "sr"})
	require.NoError(t, cfg.AddParameter("Channel", "link%%link1", "delay", "1e-5"))

	for _, name := range []string{"cfg.yaml", "cfg.json"} {
		filename := filepath.Join(dir, name)
		require.NoError(t, cfg.WriteToFile(filename))

		read, err := ReadSimCfg(filename, UseYAML(filename), nil)
		require.NoError(t, err)
		assert.Equal(t, cfg, read, name)
	}

	assert.ErrorIs(t, cfg.WriteToFile(filepath.Join(dir, "cfg.txt")), ErrConfig)
}

func TestReadSimCfgDefaults(t *testing.T) {
	// fields absent from the input keep their default values
	cfg, err := ReadSimCfg("", true, []byte("protocol: go-back-n\nwindowsize: 7\n"))
	require.NoError(t, err)
	assert.Equal(t, "go-back-n", cfg.Protocol)
	assert.Equal(t, 7, cfg.WindowSize)
	assert.Equal(t, 1e6, cfg.TransRate)
	assert.Len(t, cfg.Links, 1)

	_, err = ReadSimCfg(filepath.Join(t.TempDir(), "missing.yaml"), true, nil)
	assert.ErrorIs(t, err, ErrConfig)

	_, err = ReadSimCfg("", false, []byte("{not json"))
	assert.Error(t, err)
}

func TestSimCfgValidate(t *testing.T) {
	cfg := DefaultSimCfg()
	cfg.Protocol = "sliding"
	cfg.ErrorProb = 2.0
	cfg.TransRate = 0.0
	cfg.Timeout = -1.0
	cfg.WindowSize = 0
	cfg.Divisor = 1
	cfg.Links = append(cfg.Links, LinkDesc{Name: "link0", Sender: "a", Receiver: "b"})

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
	for _, fragment := range []string{"sliding", "error probability", "transmission rate", "timeout",
		"window size", "divisor", "link0 used twice"} {
		assert.Contains(t, err.Error(), fragment)
	}

	cfg = DefaultSimCfg()
	cfg.Links = nil
	assert.ErrorIs(t, cfg.Validate(), ErrConfig)
}

func TestValidateParameter(t *testing.T) {
	valid := [][3]string{
		{"Channel", "*", "errorprob"},
		{"Channel", "forward", "rate"},
		{"Channel", "name%%link0-rev", "delay"},
		{"Channel", "link%%link0,reverse", "errorprob"},
		{"Link", "go-back-n", "window"},
		{"Link", "name%%link0", "timeout"},
	}
	for _, v := range valid {
		assert.NoError(t, ValidateParameter(v[0], v[1], v[2]), "%v", v)
	}

	invalid := [][3]string{
		{"Switch", "*", "errorprob"},
		{"Channel", "sideways", "rate"},
		{"Channel", "*", "window"},
		{"Channel", "name%%link0-rev,forward", "delay"},
		{"Link", "link%%link0", "timeout"},
	}
	for _, v := range invalid {
		assert.ErrorIs(t, ValidateParameter(v[0], v[1], v[2]), ErrConfig, "%v", v)
	}

	cfg := DefaultSimCfg()
	assert.Error(t, cfg.AddParameter("Link", "*", "rate", "1"))
	assert.Empty(t, cfg.Parameters)
}

func TestReportErrs(t *testing.T) {
	assert.NoError(t, ReportErrs(nil))
	assert.NoError(t, ReportErrs([]error{nil}))

	err := ReportErrs([]error{ErrConfig, nil, os.ErrNotExist})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConfig)
	assert.Contains(t, err.Error(), "bad configuration,")
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "there.yaml")
	require.NoError(t, os.WriteFile(existing, []byte("name: x\n"), 0644))

	ok, err := CheckReadableFiles([]string{existing, ""})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, err = CheckReadableFiles([]string{filepath.Join(dir, "absent.yaml")})
	assert.False(t, ok)
	assert.Error(t, err)

	ok, err = CheckOutputFiles([]string{filepath.Join(dir, "new.yaml")})
	assert.True(t, ok)
	assert.NoError(t, err)

	ok, _ = CheckOutputFiles([]string{filepath.Join(dir, "nodir", "new.yaml")})
	assert.False(t, ok)
}
