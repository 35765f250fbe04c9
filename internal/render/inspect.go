package render

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"

	"github.com/HanTheDev/payload-listener/internal/jsonbig"
)

const (
	breakLength     = 80
	compactLevels   = 3
	maxArrayLength  = 100
	maxStringLength = 10000
	minLineWidth    = 16
)

var (
	identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z_0-9]*$`)
	ansiRe       = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

type styles struct {
	number  func(a ...interface{}) string
	str     func(a ...interface{}) string
	null    func(a ...interface{}) string
	special func(a ...interface{}) string
}

func plainStyles() styles {
	plain := fmt.Sprint
	return styles{number: plain, str: plain, null: plain, special: plain}
}

func colorStyles() styles {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		c.EnableColor()
		return c.SprintFunc()
	}
	return styles{
		number:  mk(color.FgYellow),
		str:     mk(color.FgGreen),
		null:    mk(color.Bold),
		special: mk(color.FgCyan),
	}
}

// inspector lays values out the way Node's util.inspect does with its
// console defaults.
type inspector struct {
	depth  int
	colors bool
	style  styles

	indentationLvl int
	currentDepth   int
}

func newInspector(depth int, colors bool) *inspector {
	in := &inspector{depth: depth, colors: colors, style: plainStyles()}
	if colors {
		in.style = colorStyles()
	}
	return in
}

func (in *inspector) inspect(v any) string {
	in.indentationLvl = 0
	in.currentDepth = 0
	// console.log prints a top-level string as is.
	if s, ok := v.(string); ok {
		return s
	}
	return in.value(v, 0)
}

func (in *inspector) value(v any, recurseTimes int) string {
	switch t := v.(type) {
	case nil:
		return in.style.null("null")
	case bool:
		return in.style.number(strconv.FormatBool(t))
	case int64:
		return in.style.number(strconv.FormatInt(t, 10))
	case float64:
		return in.style.number(formatNumber(t))
	case *big.Int:
		return in.style.number(t.String() + "n")
	case string:
		return in.string(t)
	case []any:
		return in.array(t, recurseTimes)
	case jsonbig.Object:
		return in.object(t, recurseTimes)
	}
	return fmt.Sprintf("%v", v)
}

func (in *inspector) string(s string) string {
	trailer := ""
	if n := utf8.RuneCountInString(s); n > maxStringLength {
		remaining := n - maxStringLength
		s = string([]rune(s)[:maxStringLength])
		trailer = fmt.Sprintf("... %d more character%s", remaining, plural(remaining))
	}

	n := utf8.RuneCountInString(s)
	if n > minLineWidth && n > breakLength-in.indentationLvl-4 {
		lines := splitAfterNewlines(s)
		quoted := make([]string, len(lines))
		for i, line := range lines {
			quoted[i] = in.style.str(quote(line))
		}
		return strings.Join(quoted, " +\n"+strings.Repeat(" ", in.indentationLvl+2)) + trailer
	}
	return in.style.str(quote(s)) + trailer
}

func (in *inspector) array(arr []any, recurseTimes int) string {
	if len(arr) == 0 {
		return "[]"
	}
	if in.depth >= 0 && recurseTimes > in.depth {
		return in.style.special("[Array]")
	}
	recurseTimes++
	in.currentDepth = recurseTimes

	n := min(len(arr), maxArrayLength)
	output := make([]string, 0, n+1)
	for _, el := range arr[:n] {
		in.indentationLvl += 2
		output = append(output, in.value(el, recurseTimes))
		in.indentationLvl -= 2
	}
	if remaining := len(arr) - n; remaining > 0 {
		output = append(output, fmt.Sprintf("... %d more item%s", remaining, plural(remaining)))
	}

	entries := len(output)
	if entries > 6 {
		output = in.groupArrayElements(output, arr)
	}
	return in.reduce(output, entries, "[", "]", recurseTimes)
}

func (in *inspector) object(obj jsonbig.Object, recurseTimes int) string {
	if len(obj) == 0 {
		return "{}"
	}
	if in.depth >= 0 && recurseTimes > in.depth {
		return in.style.special("[Object]")
	}
	recurseTimes++
	in.currentDepth = recurseTimes

	output := make([]string, 0, len(obj))
	for _, m := range obj {
		in.indentationLvl += 2
		s := in.value(m.Value, recurseTimes)
		in.indentationLvl -= 2

		name := m.Key
		if !identifierRe.MatchString(name) {
			name = in.style.str(quote(name))
		}
		output = append(output, name+": "+s)
	}
	return in.reduce(output, len(output), "{", "}", recurseTimes)
}

// reduce joins entries on one line when they fit, otherwise one per line.
func (in *inspector) reduce(output []string, entries int, openBrace, closeBrace string, recurseTimes int) string {
	if in.currentDepth-recurseTimes < compactLevels && entries == len(output) {
		start := len(output) + in.indentationLvl + len(openBrace) + 10
		if in.belowBreakLength(output, start) {
			joined := strings.Join(output, ", ")
			if !strings.Contains(joined, "\n") {
				return openBrace + " " + joined + " " + closeBrace
			}
		}
	}
	indentation := "\n" + strings.Repeat(" ", in.indentationLvl)
	return openBrace + indentation + "  " + strings.Join(output, ","+indentation+"  ") + indentation + closeBrace
}

func (in *inspector) belowBreakLength(output []string, start int) bool {
	total := len(output) + start
	if total+len(output) > breakLength {
		return false
	}
	for _, s := range output {
		total += in.width(s)
		if total > breakLength {
			return false
		}
	}
	return true
}

// groupArrayElements arranges many short entries into aligned columns.
func (in *inspector) groupArrayElements(output []string, arr []any) []string {
	const separatorSpace = 2

	outputLength := len(output)
	if len(arr) > maxArrayLength {
		// Leave the "... more items" line out of the grid.
		outputLength--
	}

	dataLen := make([]int, outputLength)
	totalLength, maxLength := 0, 0
	for i := 0; i < outputLength; i++ {
		l := in.width(output[i])
		dataLen[i] = l
		totalLength += l + separatorSpace
		if l > maxLength {
			maxLength = l
		}
	}

	actualMax := maxLength + separatorSpace
	if actualMax*3+in.indentationLvl >= breakLength ||
		(float64(totalLength)/float64(actualMax) <= 5 && maxLength > 6) {
		return output
	}

	averageBias := math.Sqrt(float64(actualMax) - float64(totalLength)/float64(len(output)))
	biasedMax := math.Max(float64(actualMax)-3-averageBias, 1)
	columns := min(
		int(math.Round(math.Sqrt(2.5*biasedMax*float64(outputLength))/biasedMax)),
		(breakLength-in.indentationLvl)/actualMax,
		compactLevels*4,
		15,
	)
	if columns <= 1 {
		return output
	}

	maxLineLength := make([]int, 0, columns)
	for i := 0; i < columns; i++ {
		lineLength := 0
		for j := i; j < outputLength; j += columns {
			lineLength = max(lineLength, dataLen[j])
		}
		maxLineLength = append(maxLineLength, lineLength+separatorSpace)
	}

	padStart := true
	for _, el := range arr[:outputLength] {
		switch el.(type) {
		case int64, float64, *big.Int:
		default:
			padStart = false
		}
	}

	grouped := make([]string, 0, outputLength/columns+2)
	for i := 0; i < outputLength; i += columns {
		end := min(i+columns, outputLength)
		var b strings.Builder
		j := i
		for ; j < end-1; j++ {
			cell := output[j] + ", "
			pad := maxLineLength[j-i] - dataLen[j] - separatorSpace
			if padStart {
				b.WriteString(strings.Repeat(" ", pad) + cell)
			} else {
				b.WriteString(cell + strings.Repeat(" ", pad))
			}
		}
		if padStart {
			pad := maxLineLength[j-i] - dataLen[j] - separatorSpace
			b.WriteString(strings.Repeat(" ", max(pad, 0)))
		}
		b.WriteString(output[j])
		grouped = append(grouped, b.String())
	}
	if outputLength < len(output) {
		grouped = append(grouped, output[outputLength])
	}
	return grouped
}

func (in *inspector) width(s string) int {
	if in.colors {
		s = ansiRe.ReplaceAllString(s, "")
	}
	return utf8.RuneCountInString(s)
}

// formatNumber prints f the way JavaScript's Number#toString does.
func formatNumber(f float64) string {
	if f == 0 {
		if math.Signbit(f) {
			return "-0"
		}
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e21 || abs < 1e-6 {
		s := strconv.FormatFloat(f, 'e', -1, 64)
		mant, exp, _ := strings.Cut(s, "e")
		return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// quote picks the quote character that needs the least escaping and escapes
// control characters.
func quote(s string) string {
	q := byte('\'')
	if strings.IndexByte(s, '\'') >= 0 {
		if strings.IndexByte(s, '"') < 0 {
			q = '"'
		} else if strings.IndexByte(s, '`') < 0 && !strings.Contains(s, "${") {
			q = '`'
		}
	}

	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\b':
			b.WriteString(`\b`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\f':
			b.WriteString(`\f`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			fmt.Fprintf(&b, `\x%02X`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}

func splitAfterNewlines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func plural(n int) string {
	if n > 1 {
		return "s"
	}
	return ""
}
