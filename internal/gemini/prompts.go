package gemini

import (
	"fmt"
	"strings"

	"github.com/medix/medix-server/pkg/models"
)

const baseMedicalPrompt = `You are MediX AI, a professional medical assistant integrated into a healthcare platform.
You provide helpful medical information and guidance while emphasizing the importance of professional medical consultation.

Guidelines:
1. Always provide evidence-based medical information
2. Encourage users to consult healthcare professionals for diagnosis and treatment
3. Be empathetic and understanding
4. Ask relevant follow-up questions to better understand symptoms
5. Provide helpful lifestyle and wellness advice when appropriate
6. Never provide specific drug dosages or prescriptions
7. Always mention when emergency medical attention might be needed

Remember: You are assisting, not replacing, professional medical care.`

func userContextLine(user *models.User) string {
	if user == nil {
		return ""
	}
	return fmt.Sprintf("Patient context: Age: %d, Gender: %s, City: %s", user.Age, user.Gender, user.City)
}

func analyzePrompt(predictions []models.Prediction, symptoms string, user *models.User) string {
	var b strings.Builder
	b.WriteString(baseMedicalPrompt)
	b.WriteString("\n\nBased on AI image analysis, here are the top predictions:\n")
	for i, pred := range predictions {
		fmt.Fprintf(&b, "%d. %s: %.2f%% confidence\n", i+1, pred.Disease, pred.Confidence*100)
	}
	fmt.Fprintf(&b, "\nPatient reported symptoms: %s\n", symptoms)
	if line := userContextLine(user); line != "" {
		b.WriteString(line + "\n")
	}
	b.WriteString(`
Please analyze the AI predictions along with the reported symptoms and provide:
1. The most likely diagnosis from the AI predictions based on symptoms
2. Additional questions to ask the patient to clarify the diagnosis
3. General recommendations and next steps
4. When to seek immediate medical attention

Format your response as JSON with keys: 'likely_diagnosis', 'follow_up_questions', 'recommendations', 'emergency_signs'`)
	return b.String()
}

func diseaseInfoPrompt(disease, detailLevel string) string {
	return fmt.Sprintf(`%s

Please provide %s information about: %s

Include:
1. Overview of the condition
2. Common symptoms
3. Potential causes
4. General prevention measures
5. When to seek medical attention
6. General treatment approaches (emphasize need for professional consultation)

Keep the language accessible but medically accurate.`, baseMedicalPrompt, detailLevel, disease)
}

func emergencyPrompt(symptoms string) string {
	return fmt.Sprintf(`%s

Please assess these symptoms for emergency urgency: %s

Provide assessment as JSON with:
- 'urgency_level': 'emergency', 'urgent', 'routine', or 'self_care'
- 'reasoning': explanation of assessment
- 'immediate_actions': what to do right now
- 'timeline': when to seek care

Be conservative - when in doubt, recommend seeking medical attention.`, baseMedicalPrompt, symptoms)
}

func chatPrompt(history []models.ChatMessage, message string, user *models.User) string {
	var b strings.Builder
	b.WriteString(baseMedicalPrompt)
	b.WriteString("\n\n")
	if line := userContextLine(user); line != "" {
		b.WriteString(line + "\n\n")
	}

	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, msg := range history {
			role := "MediX AI"
			if msg.MessageType == "user" {
				role = "Patient"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, msg.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Patient message: %s\n\n", message)
	b.WriteString("Please continue the medical consultation, referring to previous discussion points when relevant.")
	return b.String()
}
