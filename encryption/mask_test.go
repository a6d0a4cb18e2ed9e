package encryption_test

import (
	"testing"

	"github.com/alwitt/strongbox/encryption"
	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	assert := assert.New(t)

	type testCase struct {
		value    string
		visible  int
		expected string
	}
	for _, tc := range []testCase{
		{value: "sk-live-abcdef1234", visible: 4, expected: "sk-****1234"},
		{value: "abcdefghij", visible: 4, expected: "ab****ghij"},
		{value: "abcdefgh", visible: 4, expected: "********"},
		{value: "abc", visible: 4, expected: "***"},
		{value: "", visible: 4, expected: ""},
		{value: "abcdefghijkl", visible: 0, expected: "abc****"},
		{value: "pässwörd-ünïcødé", visible: 2, expected: "päs****dé"},
	} {
		assert.Equal(tc.expected, encryption.Mask(tc.value, tc.visible), tc.value)
	}
}

func TestMaskInText(t *testing.T) {
	assert := assert.New(t)

	line := "connecting with user=svc password=hunter2 token=hunter2-long"
	assert.Equal(
		"connecting with user=svc password=*** token=***",
		encryption.MaskInText(line, "hunter2", "hunter2-long", ""),
	)
	assert.Equal(line, encryption.MaskInText(line))
	assert.Equal("a *** b ***", encryption.MaskInText("a x b x", "x"))
}
