// Package locale holds the user-facing strings of the todo client.
package locale

import (
	"errors"
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ErrUnsupported is returned by Lookup for a locale with no catalog.
var ErrUnsupported = errors.New("unsupported locale")

// Messages is one language's catalog.
type Messages struct {
	Tag language.Tag

	AddFailed      string
	UpdateFailed   string
	DeleteFailed   string
	ConnectionLost string
	Empty          string
	Placeholder    string
	Help           string
	EditHelp       string

	totalOne   string
	totalOther string
	printer    *message.Printer
}

// Total is the footer line for a non-empty list of n items.
func (m *Messages) Total(n int) string {
	if n == 1 {
		return m.printer.Sprintf(m.totalOne, n)
	}
	return m.printer.Sprintf(m.totalOther, n)
}

// Footer is Empty for n == 0 and Total(n) otherwise.
func (m *Messages) Footer(n int) string {
	if n == 0 {
		return m.Empty
	}
	return m.Total(n)
}

var english = Messages{
	Tag:            language.English,
	AddFailed:      "Could not add the task. Please try again.",
	UpdateFailed:   "Could not update the task. Please try again.",
	DeleteFailed:   "Could not delete the task. Please try again.",
	ConnectionLost: "Lost connection to the item store. Press ctrl+r to reconnect.",
	Empty:          "No pending tasks",
	Placeholder:    "Add a new task",
	Help:           "enter add • ↑/↓ move • ctrl+e edit • ctrl+d delete • esc quit",
	EditHelp:       "enter save • esc cancel",
	totalOne:       "%d task in total",
	totalOther:     "%d tasks in total",
}

var spanish = Messages{
	Tag:            language.Spanish,
	AddFailed:      "Error al agregar la tarea. Por favor intenta de nuevo.",
	UpdateFailed:   "Error al actualizar la tarea. Por favor intenta de nuevo.",
	DeleteFailed:   "Error al eliminar la tarea. Por favor intenta de nuevo.",
	ConnectionLost: "Se perdió la conexión con el almacén. Pulsa ctrl+r para reconectar.",
	Empty:          "No hay tareas pendientes",
	Placeholder:    "Agregar nueva tarea",
	Help:           "enter agregar • ↑/↓ mover • ctrl+e editar • ctrl+d eliminar • esc salir",
	EditHelp:       "enter guardar • esc cancelar",
	totalOne:       "%d tarea en total",
	totalOther:     "%d tareas en total",
}

// supported lists catalogs in matcher order; the first is the fallback.
var supported = []*Messages{&english, &spanish}

var matcher = language.NewMatcher([]language.Tag{english.Tag, spanish.Tag})

// Default returns the English catalog.
func Default() *Messages {
	return Lookup(english.Tag)
}

// Lookup returns the catalog for tag, falling back to English.
func Lookup(tag language.Tag) *Messages {
	_, index, _ := matcher.Match(tag)
	m := *supported[index]
	m.printer = message.NewPrinter(m.Tag)
	return &m
}

// Parse returns the catalog for a BCP 47 name such as "es" or "es-MX".
func Parse(name string) (*Messages, error) {
	tag, err := language.Parse(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrUnsupported, name, err)
	}

	_, index, confidence := matcher.Match(tag)
	if confidence == language.No {
		return nil, fmt.Errorf("%w %q", ErrUnsupported, name)
	}

	m := *supported[index]
	m.printer = message.NewPrinter(m.Tag)
	return &m, nil
}
