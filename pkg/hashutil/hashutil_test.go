package hashutil_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/trustpass/inspect/pkg/hashutil"
)

func TestSHA256Hex(t *testing.T) {
	// sha256("") is a well-known digest
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		hashutil.SHA256Hex(nil))
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		hashutil.SHA256Hex([]byte("hello")))
}

func TestMatches(t *testing.T) {
	digest := hashutil.SHA256Hex([]byte("payload"))
	assert.True(t, hashutil.Matches([]byte("payload"), digest))
	assert.True(t, hashutil.Matches([]byte("payload"), strings.ToUpper(digest)))
	assert.False(t, hashutil.Matches([]byte("tampered"), digest))
}

func TestPrefixByte(t *testing.T) {
	assert.Equal(t, "ab", hashutil.PrefixByte("abcdef", 0))
	assert.Equal(t, "cd", hashutil.PrefixByte("abcdef", 1))
	assert.Equal(t, "ef", hashutil.PrefixByte("ABCDEF", 2))
	assert.Equal(t, "", hashutil.PrefixByte("abcdef", 3))
	assert.Equal(t, "", hashutil.PrefixByte("a", 0))
}

func TestDecode(t *testing.T) {
	assert.Equal(t, []byte{0xab, 0xcd}, hashutil.Decode("abcd"))
	assert.Nil(t, hashutil.Decode("zz"))
}
