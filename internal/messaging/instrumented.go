package messaging

import "context"

// Recorder counts send attempts.
type Recorder interface {
	RecordMessage(kind string, err error)
}

// Instrument wraps s so every attempt is reported to rec.
func Instrument(s Sender, rec Recorder) Sender {
	if rec == nil {
		return s
	}
	return instrumented{next: s, rec: rec}
}

type instrumented struct {
	next Sender
	rec  Recorder
}

func (i instrumented) SendTemplate(ctx context.Context, phone, template string, params []string) (string, error) {
	id, err := i.next.SendTemplate(ctx, phone, template, params)
	i.rec.RecordMessage("template", err)
	return id, err
}

func (i instrumented) SendText(ctx context.Context, phone, body string) (string, error) {
	id, err := i.next.SendText(ctx, phone, body)
	i.rec.RecordMessage("text", err)
	return id, err
}
