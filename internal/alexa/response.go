package alexa

import "fmt"

// Response is a well-formed skill response. Every dialogue turn ends
// in one of these, faults included.
type Response struct {
	Version string       `json:"version"`
	Body    ResponseBody `json:"response"`
}

type ResponseBody struct {
	OutputSpeech     *OutputSpeech `json:"outputSpeech,omitempty"`
	Reprompt         *Reprompt     `json:"reprompt,omitempty"`
	Directives       []any         `json:"directives,omitempty"`
	ShouldEndSession bool          `json:"shouldEndSession"`
}

type OutputSpeech struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

type Reprompt struct {
	OutputSpeech OutputSpeech `json:"outputSpeech"`
}

// Speak builds a plain-text speech response, optionally with a
// reprompt. An empty reprompt keeps the response one-shot.
func Speak(text, reprompt string, endSession bool) Response {
	resp := Response{
		Version: "1.0",
		Body: ResponseBody{
			OutputSpeech:     &OutputSpeech{Type: "PlainText", Text: text},
			ShouldEndSession: endSession,
		},
	}
	if reprompt != "" {
		resp.Body.Reprompt = &Reprompt{
			OutputSpeech: OutputSpeech{Type: "PlainText", Text: reprompt},
		}
	}
	return resp
}

// ElicitSlot asks the platform to collect a missing intent slot.
func ElicitSlot(slotName, prompt, intentName string) Response {
	return Response{
		Version: "1.0",
		Body: ResponseBody{
			OutputSpeech: &OutputSpeech{Type: "PlainText", Text: prompt},
			Directives: []any{
				map[string]any{
					"type":          "Dialog.ElicitSlot",
					"slotToElicit":  slotName,
					"updatedIntent": map[string]any{"name": intentName, "slots": map[string]any{}},
				},
			},
			ShouldEndSession: false,
		},
	}
}

// PlayAudio builds the SSML + AudioPlayer response for a voice note.
func PlayAudio(sender, transcription, token, audioURL string) Response {
	ssml := fmt.Sprintf(
		`<speak>Áudio de %s. %s <audio src="%s"/></speak>`,
		sender, transcription, audioURL,
	)

	return Response{
		Version: "1.0",
		Body: ResponseBody{
			OutputSpeech: &OutputSpeech{Type: "SSML", SSML: ssml},
			Directives: []any{
				map[string]any{
					"type":         "AudioPlayer.Play",
					"playBehavior": "REPLACE_ALL",
					"audioItem": map[string]any{
						"stream": map[string]any{
							"token":                token,
							"url":                  audioURL,
							"offsetInMilliseconds": 0,
						},
					},
				},
			},
			ShouldEndSession: true,
		},
	}
}

// EmptyResponse acknowledges a SessionEndedRequest.
func EmptyResponse() Response {
	return Response{Version: "1.0"}
}
