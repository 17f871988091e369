package treez

import (
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type endpoint struct {
	Host string
	Port int
}

func TestFormatField(t *testing.T) {
	for _, tc := range []struct {
		field Field
		want  string
	}{
		{F(MessageKey, "plain text"), "plain text"},
		{F("peer", "A"), `"A"`},
		{F("quoted", `say "hi"`), `"say \"hi\""`},
		{F("n", 42), "42"},
		{F("ok", true), "true"},
		{F("ratio", 0.5), "0.5"},
		{F("nothing", nil), "nil"},
		{F("err", errors.New("boom")), "boom"},
		{F("timeout", 2 * time.Second), "2s"},
	} {
		require.Equal(t, tc.want, formatField(tc.field), tc.field.Key)
	}
}

func TestFormatFieldComposite(t *testing.T) {
	got := formatField(F("addr", endpoint{Host: "db", Port: 5432}))
	require.Contains(t, got, "endpoint")
	require.Contains(t, got, "Host")
	require.Contains(t, got, `"db"`)
	require.Contains(t, got, "5432")

	got = formatField(F("ids", []int{1, 2, 3}))
	require.Contains(t, got, "1")
	require.Contains(t, got, "3")
}

func TestWriteKVs(t *testing.T) {
	data := newSpanData(time.Time{}, []Field{
		F("peer", "A"),
		F(MessageKey, "hello"),
		F("n", 1),
	}, true)

	var b strings.Builder
	writeKVs(&b, data.fields)
	require.Equal(t, `peer="A", hello, n=1`, b.String())

	b.Reset()
	writeKVs(&b, nil)
	require.Empty(t, b.String())
}

func TestSpanDataWritten(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d := newSpanData(start, nil, false)
	require.False(t, d.Written())
	require.Equal(t, start, d.Start())

	require.False(t, d.markWritten())
	require.True(t, d.markWritten())
	require.True(t, d.Written())
}
