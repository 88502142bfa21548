// Package logging monta o logger logrus usado pelos binários.
//
// Componentes recebem logrus.FieldLogger e acrescentam campos (block, sid, ...).
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New cria um logger no nível pedido ("debug", "info", "warn", ...).
// json=true troca o formato de texto por JSON (para coletores de log).
func New(level string, json bool) (*logrus.Logger, error) {
	return NewWithOutput(os.Stderr, level, json)
}

func NewWithOutput(w io.Writer, level string, json bool) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}
