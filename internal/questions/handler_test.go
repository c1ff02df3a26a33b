package questions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/confera/backend/internal/models"
)

func TestValidateOptions(t *testing.T) {
	valid := []models.QuestionOption{
		{Key: "a", Label: "Yes"},
		{Key: "b", Label: "No"},
	}

	assert.NoError(t, ValidateOptions(valid, "a"))
	assert.NoError(t, ValidateOptions(valid, "b"))

	assert.Error(t, ValidateOptions(valid, "c"), "correct option must be one of the keys")
	assert.Error(t, ValidateOptions(valid, ""), "empty correct option")

	assert.Error(t, ValidateOptions([]models.QuestionOption{{Key: "a", Label: "only"}}, "a"),
		"a single option is not a poll")
	assert.Error(t, ValidateOptions(nil, "a"))

	dup := []models.QuestionOption{
		{Key: "a", Label: "one"},
		{Key: "a", Label: "two"},
	}
	assert.Error(t, ValidateOptions(dup, "a"), "duplicate keys")

	blank := []models.QuestionOption{
		{Key: "", Label: "one"},
		{Key: "b", Label: "two"},
	}
	assert.Error(t, ValidateOptions(blank, "b"), "blank key")
}
