package email

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/jhoicas/contratos-api/pkg/config"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestNewSMTPMailer_SinHostDevuelveNil(t *testing.T) {
	assert.Nil(t, NewSMTPMailer(config.SMTPConfig{}))
}

func TestSend_ArmaMensajeConCopiaOculta(t *testing.T) {
	fs := &fakeSender{}
	m := &SMTPMailer{from: "noreply@empresa.com", dialer: fs}

	err := m.Send(context.Background(), []string{"a@empresa.com", "b@empresa.com"}, "Asunto", "Cuerpo")
	require.NoError(t, err)
	require.Len(t, fs.sent, 1)

	msg := fs.sent[0]
	assert.Equal(t, []string{"a@empresa.com", "b@empresa.com"}, msg.GetHeader("Bcc"))
	assert.Equal(t, []string{"Asunto"}, msg.GetHeader("Subject"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Cuerpo")
}

func TestSend_SinDestinatariosNoEnvia(t *testing.T) {
	fs := &fakeSender{}
	m := &SMTPMailer{from: "x@y.z", dialer: fs}
	require.NoError(t, m.Send(context.Background(), nil, "s", "b"))
	assert.Empty(t, fs.sent)
}

func TestSend_ContextoCanceladoNoEnvia(t *testing.T) {
	fs := &fakeSender{}
	m := &SMTPMailer{from: "x@y.z", dialer: fs}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, []string{"a@b.c"}, "s", "b"), context.Canceled)
	assert.Empty(t, fs.sent)
}

func TestSend_ErrorDelServidor(t *testing.T) {
	fs := &fakeSender{err: errors.New("535 auth failed")}
	m := &SMTPMailer{from: "x@y.z", dialer: fs}
	err := m.Send(context.Background(), []string{"a@b.c"}, "s", "b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp send")
}
