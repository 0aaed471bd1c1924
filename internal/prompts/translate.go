package prompts

import "fmt"

const translateTemplate = `Translate the following text into %s. Output only the translation, with no explanation.

%s`

// TranslatePrompt asks for a bare translation of text into lang.
func TranslatePrompt(lang, text string) string {
	return fmt.Sprintf(translateTemplate, lang, text)
}
