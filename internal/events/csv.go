package events

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/kenku-bot/crowevents/internal/models"
)

var (
	adjustmentHeader = []string{"user_id", "user_name", "adjustment", "note"}
	exportHeader     = []string{"message_id", "season_id", "season_name", "channel_id", "channel_name",
		"user_id", "user_name", "point_value", "sent_at"}
)

// AdjustmentRecord: строка CSV корректировок. При UserID=0 id не указан и
// пользователя нужно найти по UserName.
type AdjustmentRecord struct {
	UserID     int64
	UserName   string
	Adjustment int
	Note       *string
}

// ParseAdjustments читает CSV с заголовком user_id,user_name,adjustment,note
// (порядок колонок любой, note можно не указывать). Пустой ввод: пустой набор.
func ParseAdjustments(r io.Reader) ([]AdjustmentRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, &RowError{Line: max(parseErrorLine(err), 1), Err: err}
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		cols[h] = i
	}
	for _, need := range adjustmentHeader[:3] {
		if _, ok := cols[need]; !ok {
			return nil, &RowError{Line: 1, Err: fmt.Errorf("missing column %q", need)}
		}
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []AdjustmentRecord
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &RowError{Line: parseErrorLine(err), Err: err}
		}
		line, _ := cr.FieldPos(0)
		if blank(rec) {
			continue
		}

		var a AdjustmentRecord
		if v := field(rec, "user_id"); v != "" {
			if a.UserID, err = strconv.ParseInt(v, 10, 64); err != nil {
				return nil, &RowError{Line: line, Err: fmt.Errorf("user_id %q is not a number", v)}
			}
		}
		a.UserName = field(rec, "user_name")
		if v := field(rec, "adjustment"); v != "" {
			if a.Adjustment, err = strconv.Atoi(v); err != nil {
				return nil, &RowError{Line: line, Err: fmt.Errorf("adjustment %q is not an integer", v)}
			}
		}
		if note := field(rec, "note"); note != "" {
			a.Note = &note
		}
		if a.UserID == 0 && a.UserName == "" {
			return nil, &RowError{Line: line, Err: errors.New("neither user_id nor user_name is set")}
		}
		out = append(out, a)
	}
	return out, nil
}

// parseErrorLine: строка, где начиналась запись с ошибкой; 0, если неизвестно.
func parseErrorLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.StartLine
	}
	return 0
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// WriteAdjustments пишет CSV корректировок, все поля в кавычках.
// Пустой UserID пишется пустой строкой.
func WriteAdjustments(w io.Writer, rows []AdjustmentRecord) error {
	bw := bufio.NewWriter(w)
	if err := writeQuoted(bw, adjustmentHeader); err != nil {
		return err
	}
	for _, a := range rows {
		uid := ""
		if a.UserID != 0 {
			uid = strconv.FormatInt(a.UserID, 10)
		}
		note := ""
		if a.Note != nil {
			note = *a.Note
		}
		if err := writeQuoted(bw, []string{uid, a.UserName, strconv.Itoa(a.Adjustment), note}); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// encoding/csv кавычит только по необходимости, а формат требует кавычки везде.
func writeQuoted(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(`"` + strings.ReplaceAll(f, `"`, `""`) + `"`); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\r\n")
	return err
}

// SampleAdjustment: строка-пример для пустого канала, в базу не пишется.
func SampleAdjustment(userName string) AdjustmentRecord {
	if userName == "" {
		userName = "username#0000"
	}
	note := fmt.Sprintf("Adding 10 points for %s because reasons", userName)
	return AdjustmentRecord{UserName: userName, Adjustment: 10, Note: &note}
}

// WriteExport пишет выгрузку очков в том же формате, что и корректировки:
// все поля в кавычках. Отсутствующие значения пишутся пустыми полями.
func WriteExport(w io.Writer, rows []models.ExportRow) error {
	bw := bufio.NewWriter(w)
	if err := writeQuoted(bw, exportHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := writeQuoted(bw, exportRecord(r)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func exportRecord(r models.ExportRow) []string {
	seasonID, pointValue := "", ""
	if r.SeasonID != nil {
		seasonID = strconv.FormatInt(*r.SeasonID, 10)
	}
	if r.PointValue != nil {
		pointValue = strconv.Itoa(*r.PointValue)
	}
	return []string{
		strconv.FormatInt(r.MessageID, 10),
		seasonID,
		r.SeasonName,
		strconv.FormatInt(r.ChannelID, 10),
		r.ChannelName,
		strconv.FormatInt(r.UserID, 10),
		r.UserName,
		pointValue,
		r.SentAt.UTC().Format(time.RFC3339),
	}
}
