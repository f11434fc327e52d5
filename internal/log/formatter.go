package log

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// formatter renders entries through a pattern. Recognized tokens:
// %time %level %msg %field %caller %func. Unknown tokens are kept as is.
type formatter struct {
	pattern string
	time    string
}

var patternTokens = []string{"%time", "%level", "%msg", "%field", "%caller", "%func"}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	p := f.pattern
	for len(p) > 0 {
		i := strings.IndexByte(p, '%')
		if i < 0 {
			b.WriteString(p)
			break
		}
		b.WriteString(p[:i])
		p = p[i:]
		tok := matchToken(p)
		if tok == "" {
			b.WriteByte('%')
			p = p[1:]
			continue
		}
		b.WriteString(f.render(tok, entry))
		p = p[len(tok):]
	}

	out := b.String()
	if strings.HasSuffix(out, "\n") {
		out = strings.TrimRight(out[:len(out)-1], " ") + "\n"
	}
	return []byte(out), nil
}

func matchToken(p string) string {
	for _, tok := range patternTokens {
		if strings.HasPrefix(p, tok) {
			return tok
		}
	}
	return ""
}

func (f *formatter) render(tok string, entry *logrus.Entry) string {
	switch tok {
	case "%time":
		return entry.Time.Format(f.time)
	case "%level":
		return entry.Level.String()
	case "%msg":
		return entry.Message
	case "%field":
		return renderFields(entry.Data)
	case "%caller":
		if !entry.HasCaller() {
			return "-"
		}
		return fmt.Sprintf("%s:%d", path.Join(path.Base(path.Dir(entry.Caller.File)), path.Base(entry.Caller.File)), entry.Caller.Line)
	case "%func":
		if !entry.HasCaller() {
			return "-"
		}
		fn := entry.Caller.Function
		return fn[strings.LastIndexByte(fn, '.')+1:]
	}
	return tok
}

// renderFields writes k=v pairs sorted by key, comma separated.
func renderFields(data logrus.Fields) string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%v", k, data[k])
	}
	return b.String()
}
