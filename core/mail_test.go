package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-academy/core"
	testutil "github.com/trezcool/masomo-academy/tests"
)

func TestEmailMessage_Render(t *testing.T) {
	conf := testutil.NewConfig()
	conf.FrontendBaseURL = "https://masomo.test"
	core.ParseEmailTemplates(conf, testutil.NopLogger{})

	msg := &core.EmailMessage{
		TemplateName: "enrollment_confirmed",
		TemplateData: map[string]interface{}{
			"LearnerName": "Hero",
			"Amount":      "49.99",
			"Currency":    "USD",
			"Items": []map[string]interface{}{
				{"Title": "Go 101", "Quantity": 1},
			},
		},
	}
	require.NoError(t, msg.Render())

	assert.Contains(t, msg.TextContent, "Hi Hero,")
	assert.Contains(t, msg.TextContent, "49.99 USD")
	assert.Contains(t, msg.TextContent, "- Go 101 x1")
	assert.Contains(t, msg.TextContent, "Masomo Academy")
	assert.Contains(t, msg.TextContent, "https://masomo.test/my-courses")
	assert.Contains(t, msg.HTMLContent, "Hero")
	assert.True(t, msg.HasContent())
}

func TestEmailMessage_Render_unknownTemplate(t *testing.T) {
	core.ParseEmailTemplates(testutil.NewConfig(), testutil.NopLogger{})

	msg := &core.EmailMessage{TemplateName: "nope", TextContent: "plain"}
	require.NoError(t, msg.Render())
	assert.Equal(t, "plain", msg.TextContent)
}
