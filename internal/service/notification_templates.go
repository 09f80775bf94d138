package service

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

var enrollmentCodeTemplate = template.Must(template.New("enrollment_code").Parse(`<div style="font-family: Arial, sans-serif; max-width: 480px; margin: 0 auto;">
  <h2 style="color: #1e3a8a;">Welcome to BVC Hub!</h2>
  <p>Use the code below to finish creating your account.</p>
  <p style="font-size: 28px; font-weight: bold; letter-spacing: 6px;">{{.Code}}</p>
  <p>This code expires in {{.Minutes}} minutes. If you did not request it, you can ignore this email.</p>
</div>`))

const enrollmentCodeSubject = "Your BVC Hub verification code"

func enrollmentCodeMessage(email, code string, ttl time.Duration) (Message, error) {
	minutes := int(ttl.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	var buf bytes.Buffer
	if err := enrollmentCodeTemplate.Execute(&buf, struct {
		Code    string
		Minutes int
	}{Code: code, Minutes: minutes}); err != nil {
		return Message{}, fmt.Errorf("render enrollment email: %w", err)
	}
	return Message{To: []string{email}, Subject: enrollmentCodeSubject, HTML: buf.String()}, nil
}
