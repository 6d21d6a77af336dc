package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/lms-recordings/internal/models"
)

const (
	sheetGrants = "Демо-доступы"
	sheetViews  = "Просмотры"
	timeLayout  = "2006-01-02 15:04"
)

type sheetSpec struct {
	Title  string
	Header []string
	Rows   [][]string
}

// WriteDemoLedger пишет xlsx: лист грантов и лист истории демо-просмотров.
func WriteDemoLedger(w io.Writer, grants []models.DemoAccessGrant, views []models.DemoView, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	fmtTime := func(t time.Time) string { return t.In(loc).Format(timeLayout) }

	g := sheetSpec{
		Title:  sheetGrants,
		Header: []string{"Пользователь", "Курс", "Тип", "Выдал", "Выдан", "Истекает", "Активен", "Последний просмотр", "Ресурс"},
	}
	for _, gr := range grants {
		active := "нет"
		if gr.ActiveAt(now) {
			active = "да"
		}
		grantedBy := "сам"
		if gr.GrantedBy != nil {
			grantedBy = *gr.GrantedBy
		}
		used, resource := "", ""
		if gr.UsedAt != nil {
			used = fmtTime(*gr.UsedAt)
		}
		if gr.ResourceID != nil {
			resource = *gr.ResourceID
		}
		g.Rows = append(g.Rows, []string{
			gr.UserID, gr.CourseID, string(gr.AccessType), grantedBy,
			fmtTime(gr.GrantedAt), fmtTime(gr.ExpiresAt), active, used, resource,
		})
	}

	v := sheetSpec{Title: sheetViews, Header: []string{"Пользователь", "Курс", "Запись", "Время"}}
	for _, vw := range views {
		v.Rows = append(v.Rows, []string{vw.UserID, vw.CourseID, vw.ResourceID, fmtTime(vw.ViewedAt)})
	}

	f, err := buildWorkbook([]sheetSpec{g, v})
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func buildWorkbook(sheets []sheetSpec) (*excelize.File, error) {
	f := excelize.NewFile()
	for i, s := range sheets {
		if i == 0 {
			// переименовываем стандартный Sheet1
			if err := f.SetSheetName("Sheet1", s.Title); err != nil {
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.Title); err != nil {
			return nil, fmt.Errorf("new sheet: %w", err)
		}
		if err := f.SetSheetRow(s.Title, "A1", &s.Header); err != nil {
			return nil, fmt.Errorf("header %s: %w", s.Title, err)
		}
		for r, row := range s.Rows {
			cell := fmt.Sprintf("A%d", r+2)
			if err := f.SetSheetRow(s.Title, cell, &row); err != nil {
				return nil, fmt.Errorf("row %s: %w", cell, err)
			}
		}
		if err := ApplyDefaultExcelFormatting(f, s.Title); err != nil {
			return nil, err
		}
	}
	return f, nil
}
