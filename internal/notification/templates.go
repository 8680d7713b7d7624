package notification

import (
	"bytes"
	"fmt"
	"text/template"
)

// Template names an outbound message.
type Template string

const (
	TemplateApplicationReceived Template = "application_received"
	TemplatePassApproved        Template = "pass_approved"
	TemplatePassRejected        Template = "pass_rejected"
	TemplateRenewalReceived     Template = "renewal_received"
	TemplateRenewalApproved     Template = "renewal_approved"
	TemplateRenewalRejected     Template = "renewal_rejected"
	TemplatePaymentConfirmed    Template = "payment_confirmed"
	TemplatePassExpired         Template = "pass_expired"
)

// Data is the substitution map for a template.
type Data map[string]string

type textTemplate struct {
	subject string
	body    *template.Template
}

var templates = map[Template]textTemplate{
	TemplateApplicationReceived: {
		subject: "Bus pass application received",
		body: parse("application_received",
			"Hello {{.name}},\n\nWe received your bus pass application for route {{.route}}. " +
				"You will be notified once it has been reviewed.\n"),
	},
	TemplatePassApproved: {
		subject: "Bus pass approved",
		body: parse("pass_approved",
			"Hello {{.name}},\n\nYour bus pass for route {{.route}} has been approved. " +
				"Please complete the payment of Rs. {{.fare}} to activate it.\n"),
	},
	TemplatePassRejected: {
		subject: "Bus pass application rejected",
		body: parse("pass_rejected",
			"Hello {{.name}},\n\nYour bus pass application for route {{.route}} was not approved.\n"),
	},
	TemplateRenewalReceived: {
		subject: "Bus pass renewal request received",
		body: parse("renewal_received",
			"Hello {{.name}},\n\nWe received your renewal request. The new expiry would be {{.expiry}}.\n"),
	},
	TemplateRenewalApproved: {
		subject: "Bus pass renewal approved",
		body: parse("renewal_approved",
			"Hello {{.name}},\n\nYour renewal has been approved. " +
				"Pay Rs. {{.fare}} to extend your pass until {{.expiry}}.\n"),
	},
	TemplateRenewalRejected: {
		subject: "Bus pass renewal rejected",
		body: parse("renewal_rejected",
			"Hello {{.name}},\n\nYour renewal request was not approved.\n"),
	},
	TemplatePaymentConfirmed: {
		subject: "Payment received, bus pass active",
		body: parse("payment_confirmed",
			"Hello {{.name}},\n\nWe received your payment. Your pass for route {{.route}} " +
				"is active until {{.expiry}}.\n"),
	},
	TemplatePassExpired: {
		subject: "Your bus pass has expired",
		body: parse("pass_expired",
			"Hello {{.name}},\n\nYour bus pass for route {{.route}} expired on {{.expiry}}. " +
				"You can renew it from your dashboard.\n"),
	},
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Parse(text))
}

// Render produces the subject and body for a template. Missing keys render empty.
func Render(t Template, data Data) (string, string, error) {
	tmpl, ok := templates[t]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", t)
	}
	var buf bytes.Buffer
	if err := tmpl.body.Execute(&buf, map[string]string(data)); err != nil {
		return "", "", fmt.Errorf("render %s: %w", t, err)
	}
	return tmpl.subject, buf.String(), nil
}
