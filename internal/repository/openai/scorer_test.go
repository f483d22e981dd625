package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `{"score":80}`, `{"score":80}`},
		{"json fence", "```json\n{\"score\":80}\n```", `{"score":80}`},
		{"bare fence", "```\n{\"score\":80}\n```", `{"score":80}`},
		{"surrounding prose", "Here you go:\n{\"score\":80}\nHope that helps!", `{"score":80}`},
		{"whitespace", "  \n{\"score\":80}\n  ", `{"score":80}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanJSONResponse(tt.in))
		})
	}
}

func TestAudioFileName(t *testing.T) {
	assert.Equal(t, "a.wav", audioFileName("https://storage.local/audio/r1/a.wav?sig=x"))
	assert.Equal(t, "audio.webm", audioFileName("https://storage.local/audio/r1/blob"))
	assert.Equal(t, "audio.webm", audioFileName("://bad"))
}
