package vcf

import (
	"bufio"
	"io"
	"strings"
)

// lineReader yields lines without their terminators and lets the caller push
// lines back, most recent first.
type lineReader struct {
	r      *bufio.Reader
	pushed []string
	lineNo int
	err    error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{r: bufio.NewReaderSize(r, 1<<20)}
}

// next returns the next line. ok is false at EOF or on a read error, which
// is then held in err.
func (l *lineReader) next() (line string, ok bool) {
	if n := len(l.pushed); n > 0 {
		line = l.pushed[n-1]
		l.pushed = l.pushed[:n-1]
		l.lineNo++
		return line, true
	}
	if l.err != nil {
		return "", false
	}

	line, err := l.r.ReadString('\n')
	if err != nil {
		if err != io.EOF {
			l.err = err
			return "", false
		}
		l.err = io.EOF
		if line == "" {
			return "", false
		}
	}
	l.lineNo++
	return strings.TrimRight(line, "\r\n"), true
}

// unread pushes line back so that the next call to next returns it.
func (l *lineReader) unread(line string) {
	l.pushed = append(l.pushed, line)
	l.lineNo--
}

// readErr reports a read failure other than EOF.
func (l *lineReader) readErr() error {
	if l.err == io.EOF {
		return nil
	}
	return l.err
}
