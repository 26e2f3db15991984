package cli

import (
	"fmt"
	"io"
	"strings"
)

// fieldSep joins the fields of every output line.
const fieldSep = " , "

func printRow(w io.Writer, fields ...string) {
	fmt.Fprintln(w, strings.Join(fields, fieldSep))
}
