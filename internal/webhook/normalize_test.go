package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		text   string
		avatar string
	}{
		{"output key", `{"output":"Hello <world>"}`, "Hello <world>", ""},
		{"array uses first element", `[{"output":"A"},{"output":"B"}]`, "A", ""},
		{"response key", `{"response":"from response"}`, "from response", ""},
		{"message key", `{"message":"from message"}`, "from message", ""},
		{"priority order, no concatenation", `{"message":"m","response":"r","output":"o"}`, "o", ""},
		{"blank output falls through", `{"output":"  ","response":"r"}`, "r", ""},
		{"unknown object is serialized", `{"foo":"bar","n":1}`, `{"foo":"bar","n":1}`, ""},
		{"plain string", `"just text"`, "just text", ""},
		{"number", `42.50`, "42.50", ""},
		{"bool", `true`, "true", ""},
		{"empty body", ``, NoResponseText, ""},
		{"null", `null`, NoResponseText, ""},
		{"empty array", `[]`, NoResponseText, ""},
		{"empty string", `""`, NoResponseText, ""},
		{"null first element", `[null,"x"]`, "null", ""},
		{"not json", `plain reply`, "plain reply", ""},
		{"json prefix with trailing text", `42 apples`, "42 apples", ""},
		{"avatar_url", `{"output":"hi","avatar_url":"https://cdn.example.com/a.png"}`, "hi", "https://cdn.example.com/a.png"},
		{"avatar priority", `{"output":"hi","user_avatar":"u","profile_avatar":"p"}`, "hi", "p"},
		{"avatar on fallback path", `{"other":1,"user_avatar":"u"}`, `{"other":1,"user_avatar":"u"}`, "u"},
		{"structured output value", `{"output":{"items":[1,2]}}`, `{"items":[1,2]}`, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Normalize([]byte(tc.raw))
			assert.Equal(t, tc.text, res.Text)
			if tc.avatar == "" {
				assert.Nil(t, res.Avatar)
			} else {
				require.NotNil(t, res.Avatar)
				assert.Equal(t, tc.avatar, *res.Avatar)
			}
		})
	}
}

func TestRepairLinks(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{
			"prefixed markdown link",
			"https://app.example.com/[Ver foto](https://drive.google.com/file/d/ABC123/view)",
			"[Ver foto](https://drive.google.com/file/d/ABC123/view)",
		},
		{
			"prefixed markdown link inside text",
			"Aquí está: https://app.example.com/[Ver foto](https://drive.google.com/file/d/ABC123/view) listo",
			"Aquí está: [Ver foto](https://drive.google.com/file/d/ABC123/view) listo",
		},
		{
			"prefixed bare storage url",
			"https://app.example.com/https://drive.google.com/file/d/ABC123/view",
			"https://drive.google.com/file/d/ABC123/view",
		},
		{
			"well formed link untouched",
			"[Ver foto](https://drive.google.com/file/d/ABC123/view)",
			"[Ver foto](https://drive.google.com/file/d/ABC123/view)",
		},
		{
			"bare storage url untouched",
			"see https://drive.google.com/file/d/ABC123/view",
			"see https://drive.google.com/file/d/ABC123/view",
		},
		{
			"other hosts untouched",
			"https://app.example.com/[doc](https://example.org/file.pdf)",
			"https://app.example.com/[doc](https://example.org/file.pdf)",
		},
		{"plain text", "hello world", "hello world"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.out, RepairLinks(tc.in))
		})
	}
}

func TestNormalize_RepairsLinksInText(t *testing.T) {
	res := Normalize([]byte(`"https://app.example.com/[Ver foto](https://drive.google.com/file/d/ABC123/view)"`))
	assert.Equal(t, "[Ver foto](https://drive.google.com/file/d/ABC123/view)", res.Text)

	res = Normalize([]byte(`{"output":"https://app.example.com/https://drive.google.com/file/d/X/view"}`))
	assert.Equal(t, "https://drive.google.com/file/d/X/view", res.Text)
}

func TestNormalize_FallbackIsNotRepaired(t *testing.T) {
	raw := `{"link":"https://app.example.com/https://drive.google.com/file/d/X/view"}`
	res := Normalize([]byte(raw))
	assert.Equal(t, raw, res.Text)
}

func TestSanitize_NestedDisplayFields(t *testing.T) {
	in := map[string]any{
		"output": "https://a.example.com/https://drive.google.com/file/d/1/view",
		"data": map[string]any{
			"message": []any{"https://a.example.com/[x](https://drive.google.com/file/d/2/view)"},
			"raw":     "https://a.example.com/https://drive.google.com/file/d/3/view",
		},
	}

	out := Sanitize(in).(map[string]any)
	assert.Equal(t, "https://drive.google.com/file/d/1/view", out["output"])

	data := out["data"].(map[string]any)
	assert.Equal(t, []any{"[x](https://drive.google.com/file/d/2/view)"}, data["message"])
	assert.Equal(t, "https://a.example.com/https://drive.google.com/file/d/3/view", data["raw"], "non display fields are kept")

	// input is not modified
	assert.Equal(t, "https://a.example.com/https://drive.google.com/file/d/1/view", in["output"])
}

func TestDisplayText(t *testing.T) {
	assert.Equal(t, "", DisplayText(nil))
	assert.Equal(t, "[a](https://drive.google.com/file/d/1/view)",
		DisplayText("https://x.example.com/[a](https://drive.google.com/file/d/1/view)"))
	assert.Equal(t, `{"k":"<v>"}`, DisplayText(map[string]any{"k": "<v>"}))
}
