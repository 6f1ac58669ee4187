package winrmx

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPsQuote(t *testing.T) {
	assert.Equal(t, "''", psQuote(""))
	assert.Equal(t, `'C:\Temp\a.ps1'`, psQuote(`C:\Temp\a.ps1`))
	assert.Equal(t, "'it''s'", psQuote("it's"))
}

func TestPowershellWrapping(t *testing.T) {
	wrapped := powershell(`Write-Host "hi"`)
	assert.True(t, strings.HasPrefix(wrapped, "powershell.exe -NonInteractive -NoProfile -Command "))
	// 内层双引号要转义, 不能提前结束外层引号
	assert.Contains(t, wrapped, "`\"hi`\"")
}

func TestSessionJoinUsesBackslash(t *testing.T) {
	s := &session{}
	assert.Equal(t, `C:\Windows\Temp\job\run.ps1`, s.Join(`C:\Windows\Temp`, "job", "run.ps1"))
}

func TestSessionTempDirIsUnique(t *testing.T) {
	s := &session{}
	a, b := s.TempDir(), s.TempDir()
	assert.True(t, strings.HasPrefix(a, `C:\Windows\Temp\boltserver-`))
	assert.NotEqual(t, a, b)
}
