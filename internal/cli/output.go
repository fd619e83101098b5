package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
)

// Output печатает результаты команд.
//
// Данные (таблицы, JSON) идут в stdout, сообщения о ходе работы,
// ошибки вычисления и проблемы валидации — в stderr, чтобы вывод
// с --json можно было передавать дальше по конвейеру.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output поверх stdout и stderr.
func NewOutput(jsonMode bool) *Output {
	return newOutputTo(jsonMode, os.Stdout, os.Stderr)
}

func newOutputTo(jsonMode bool, data, msgs io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: data, errW: msgs}
}

// Print выводит таблицу или, в режиме --json, jsonData.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит выровненную таблицу с подчёркнутыми заголовками.
// Пустые ячейки заменяются на "-".
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	underline := make([]string, len(headers))
	for i, h := range headers {
		underline[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(underline, "\t"))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == "" {
				c = "-"
			}
			cells[i] = c
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	tw.Flush()
}

// JSON выводит v с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		o.Error(fmt.Sprintf("encode output: %v", err))
	}
}

// Success выводит сообщение о выполненном действии.
func (o *Output) Success(format string, args ...any) {
	fmt.Fprintf(o.errW, format+"\n", args...)
}

// Error выводит сообщение об ошибке.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// Detail выводит строку подробностей с отступом.
func (o *Output) Detail(msg string) {
	fmt.Fprintln(o.errW, "  "+msg)
}

// Failure выводит подробности ошибки API (например, проблемы
// валидации Flow). Сама ошибка возвращается из команды cobra.
func (o *Output) Failure(err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return
	}
	for _, d := range apiErr.Details {
		o.Detail(d)
	}
}

// Pass выводит итог run: ошибки элементов, сводку прохода и таблицу
// переменных Subflow с отметкой записанных.
func (o *Output) Pass(res *RunResponse) {
	for _, e := range res.Errors {
		o.Error(e)
	}
	o.Success("Evaluated %d, skipped %d, inert %d, calls %d",
		len(res.Pass.Evaluated), len(res.Pass.Skipped), len(res.Pass.Inert), res.Pass.Calls)

	written := make(map[string]bool, len(res.Pass.Written))
	for _, id := range res.Pass.Written {
		written[id] = true
	}
	ids := make([]string, 0, len(res.Variables))
	for id := range res.Variables {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		v := res.Variables[id]
		if v == nil || v.Value == nil {
			continue
		}
		rows = append(rows, []string{
			id,
			v.Value.Name,
			strings.Join(v.Value.Columns, ","),
			strconv.Itoa(len(v.Value.Rows)),
			strconv.FormatBool(written[id]),
		})
	}
	o.Print([]string{"VARIABLE", "NAME", "COLUMNS", "ROWS", "WRITTEN"}, rows, res)
}

// Reports выводит результаты валидации: таблицу по Flow и по строке
// на каждую проблему. Возвращает число Flow с проблемами.
func (o *Output) Reports(reports []ValidationReport) int {
	rows := make([][]string, len(reports))
	bad := 0
	for i, r := range reports {
		status := "ok"
		if len(r.Problems) > 0 {
			status = "invalid"
			bad++
		}
		rows[i] = []string{r.FlowID, status, strconv.Itoa(len(r.Problems))}
	}
	o.Print([]string{"FLOW", "STATUS", "PROBLEMS"}, rows, reports)

	for _, r := range reports {
		for _, p := range r.Problems {
			if r.FlowID == "" {
				o.Detail(p)
				continue
			}
			o.Detail(r.FlowID + ": " + p)
		}
	}
	return bad
}
