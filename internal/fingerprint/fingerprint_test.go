package fingerprint_test

import (
	"testing"

	"github.com/akawashiro/ros3fs/internal/fingerprint"
	"github.com/stretchr/testify/assert"
)

func TestOfIsStableAndHex(t *testing.T) {
	a := fingerprint.Of("https://s3.example.com||my-bucket")
	b := fingerprint.Of("https://s3.example.com||my-bucket")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", a)
}

func TestOfDistinguishesInputs(t *testing.T) {
	a := fingerprint.Of("/a/b.txt")
	b := fingerprint.Of("/a/c.txt")

	assert.NotEqual(t, a, b)
}
