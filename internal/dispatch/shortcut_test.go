package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShortcutKeyWithModifiers(t *testing.T) {
	sc, err := ParseShortcut("Cmd+Shift+A")
	require.NoError(t, err)

	assert.Equal(t, 0, sc.KeyCode)
	assert.Equal(t, ModifierCommand|ModifierShift, sc.Modifiers)
	assert.False(t, sc.IsModifierOnly())
	assert.Equal(t, "Cmd+Shift+A", sc.String())
}

func TestParseShortcutSingleKey(t *testing.T) {
	sc, err := ParseShortcut("F5")
	require.NoError(t, err)

	assert.Equal(t, 96, sc.KeyCode)
	assert.Equal(t, uint64(0), sc.Modifiers)
}

func TestParseShortcutModifierOnly(t *testing.T) {
	sc, err := ParseShortcut("Option")
	require.NoError(t, err)
	assert.True(t, sc.IsModifierOnly())
	assert.Equal(t, ModifierOption, sc.Modifiers)

	sc, err = ParseShortcut("Fn+Cmd")
	require.NoError(t, err)
	assert.True(t, sc.IsModifierOnly())
	assert.Equal(t, ModifierFn|ModifierCommand, sc.Modifiers)
}

func TestParseShortcutAliases(t *testing.T) {
	// Alt 是 Option 的别名，Control 是 Ctrl 的别名
	a, err := ParseShortcut("Alt+Space")
	require.NoError(t, err)
	b, err := ParseShortcut("Option+Space")
	require.NoError(t, err)
	assert.Equal(t, a.Modifiers, b.Modifiers)
	assert.Equal(t, a.KeyCode, b.KeyCode)

	c, err := ParseShortcut("Control+C")
	require.NoError(t, err)
	assert.Equal(t, ModifierControl, c.Modifiers)
}

func TestParseShortcutCaseInsensitive(t *testing.T) {
	a, err := ParseShortcut("cmd+shift+a")
	require.NoError(t, err)
	b, err := ParseShortcut("CMD+SHIFT+A")
	require.NoError(t, err)
	assert.Equal(t, a.KeyCode, b.KeyCode)
	assert.Equal(t, a.Modifiers, b.Modifiers)
}

func TestParseShortcutErrors(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"Cmd+Unknown",
		"NotAKey",
		"A+Cmd", // 常规按键只能出现在末尾
	}
	for _, s := range cases {
		_, err := ParseShortcut(s)
		assert.Error(t, err, "input: %q", s)
	}
}

func TestShortcutMatchesChordExactEquality(t *testing.T) {
	sc := NewShortcut(0, ModifierCommand|ModifierShift)

	assert.True(t, sc.MatchesChord(0, ModifierCommand|ModifierShift))

	// 超集和子集都不匹配
	assert.False(t, sc.MatchesChord(0, ModifierCommand))
	assert.False(t, sc.MatchesChord(0, ModifierCommand|ModifierShift|ModifierOption))

	// 键码不同不匹配
	assert.False(t, sc.MatchesChord(11, ModifierCommand|ModifierShift))
}

func TestShortcutIgnoresIrrelevantFlags(t *testing.T) {
	sc := NewShortcut(49, ModifierOption)

	// Caps Lock 等掩码外的标志位不参与比较
	assert.True(t, sc.MatchesChord(49, ModifierOption|0x10000000))
	assert.True(t, sc.MatchesModifiers(ModifierOption|0x40000000))
}

func TestShortcutMatchesModifiers(t *testing.T) {
	sc := NewShortcut(KeyCodeNone, ModifierFn)

	assert.True(t, sc.MatchesModifiers(ModifierFn))
	assert.False(t, sc.MatchesModifiers(0))
	assert.False(t, sc.MatchesModifiers(ModifierFn|ModifierCommand))
}

func TestNewShortcutMasksModifiers(t *testing.T) {
	sc := NewShortcut(0, ModifierCommand|0xDEAD00000000)
	assert.Equal(t, ModifierCommand, sc.Modifiers)
}
