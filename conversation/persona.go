package conversation

// personaByLanguage is the system instruction sent ahead of every upstream
// turn list. The voice is deliberately warm, short-sentenced, and free of
// medical advice.
var personaByLanguage = map[string]string{
	"en": "You are a warm, patient companion for an older adult. Speak in short, " +
		"clear sentences. Be encouraging and never rushed. Do not give medical " +
		"advice; gently suggest talking to their caregiver or doctor instead.",
	"es": "Eres un acompañante cálido y paciente para una persona mayor. Habla con " +
		"frases cortas y claras. Sé alentador y nunca apresurado. No des consejos " +
		"médicos; sugiere con delicadeza hablar con su cuidador o médico.",
}

// apologyByLanguage is spoken in place of a response when the chat endpoint
// is unreachable, so the session never hangs in Thinking.
var apologyByLanguage = map[string]string{
	"en": "I'm sorry, I'm having trouble answering right now. Let's try again in a moment.",
	"es": "Lo siento, ahora mismo me cuesta responder. Intentémoslo de nuevo en un momento.",
}

// Persona returns the system instruction for a language, falling back to
// English.
func Persona(lang string) string {
	if p, ok := personaByLanguage[lang]; ok {
		return p
	}
	return personaByLanguage["en"]
}

// Apology returns the localized transport-failure apology.
func Apology(lang string) string {
	if a, ok := apologyByLanguage[lang]; ok {
		return a
	}
	return apologyByLanguage["en"]
}
