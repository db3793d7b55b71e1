package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	valid := []string{
		"a@b.co",
		"user.name+tag@example.com",
		"UPPER@EXAMPLE.ORG",
	}
	for _, email := range valid {
		assert.NoError(t, ValidateEmail(email), email)
	}

	invalid := []string{
		"",
		"no-at-sign",
		"@example.com",
		"user@",
		"user@nodot",
		"a@b@c.com",
		strings.Repeat("a", MaxEmailLen) + "@example.com",
	}
	for _, email := range invalid {
		assert.Error(t, ValidateEmail(email), email)
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("Correct1HorseBattery"))

	invalid := []string{
		"Short1aB",           // too short
		"alllowercase123456", // no upper
		"ALLUPPERCASE123456", // no lower
		"NoDigitsHereAtAll",  // no digit
	}
	for _, pw := range invalid {
		assert.Error(t, ValidatePassword(pw), pw)
	}
}

func TestValidateBolnaAgentID(t *testing.T) {
	assert.NoError(t, ValidateBolnaAgentID("f81d4fae-7dec-11d0-a765-00a0c91e6bf6"))
	assert.NoError(t, ValidateBolnaAgentID("agent_v2.prod"))

	assert.Error(t, ValidateBolnaAgentID(""))
	assert.Error(t, ValidateBolnaAgentID("has space"))
	assert.Error(t, ValidateBolnaAgentID("slash/id"))
	assert.Error(t, ValidateBolnaAgentID(strings.Repeat("x", 256)))
}
