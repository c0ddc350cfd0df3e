package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"zapisnik/internal/domain"
	"zapisnik/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const bookingsSheet = "Бронирования"

// Exporter renders booking data as an Excel workbook.
type Exporter struct {
	store  domain.BookingStore
	users  domain.UserDirectory
	loc    *time.Location
	logger *zerolog.Logger
}

func NewExporter(store domain.BookingStore, users domain.UserDirectory, loc *time.Location, logger *zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.Local
	}
	return &Exporter{
		store:  store,
		users:  users,
		loc:    loc,
		logger: logger,
	}
}

// WriteBookings streams an xlsx workbook with all bookings whose slot
// intersects [start, end) into w.
func (e *Exporter) WriteBookings(ctx context.Context, w io.Writer, start, end time.Time) error {
	bookings, err := e.store.GetBookingsByTimeRange(ctx, start, end)
	if err != nil {
		return fmt.Errorf("error getting bookings: %w", err)
	}

	// Имена пользователей для колонки "Пользователь"
	names := make(map[int64]string)
	if users, err := e.users.GetAllUsers(ctx); err == nil {
		for _, u := range users {
			names[u.ID] = u.Name
		}
	} else {
		e.logger.Warn().Err(err).Msg("export: user names unavailable")
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(bookingsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(bookingsSheet, "A1", fmt.Sprintf("Период: %s - %s",
		start.In(e.loc).Format("02.01.2006"), end.In(e.loc).Format("02.01.2006")))
	_ = f.MergeCell(bookingsSheet, "A1", "G1")

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(bookingsSheet, "A1", "A1", titleStyle)

	headers := []string{"ID", "Пользователь", "Начало", "Конец", "Статус", "Заметки", "Создано"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(bookingsSheet, cell, header)
		_ = f.SetCellStyle(bookingsSheet, cell, cell, headerStyle)
	}

	for i, booking := range bookings {
		row := i + 3
		userName := names[booking.UserID]
		if userName == "" {
			userName = fmt.Sprintf("#%d", booking.UserID)
		}

		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("A%d", row), booking.ID)
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("B%d", row), userName)
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("C%d", row), booking.StartTime.In(e.loc).Format("02.01.2006 15:04"))
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("D%d", row), booking.EndTime.In(e.loc).Format("02.01.2006 15:04"))
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("E%d", row), statusLabel(booking.Status))
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("F%d", row), booking.Notes)
		_ = f.SetCellValue(bookingsSheet, fmt.Sprintf("G%d", row), booking.CreatedAt.In(e.loc).Format("02.01.2006 15:04"))

		if styleID, err := statusStyle(f, booking.Status); err == nil {
			rowStart, _ := excelize.CoordinatesToCellName(1, row)
			rowEnd, _ := excelize.CoordinatesToCellName(len(headers), row)
			_ = f.SetCellStyle(bookingsSheet, rowStart, rowEnd, styleID)
		}
	}

	_ = f.SetColWidth(bookingsSheet, "A", "A", 38)
	_ = f.SetColWidth(bookingsSheet, "B", "B", 20)
	_ = f.SetColWidth(bookingsSheet, "C", "D", 18)
	_ = f.SetColWidth(bookingsSheet, "E", "E", 14)
	_ = f.SetColWidth(bookingsSheet, "F", "F", 40)
	_ = f.SetColWidth(bookingsSheet, "G", "G", 18)

	// Удаляем стандартный лист
	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing file: %w", err)
	}

	e.logger.Info().Int("bookings", len(bookings)).Msg("Excel export written")
	return nil
}

func statusLabel(status string) string {
	switch status {
	case models.StatusConfirmed:
		return "✅ Подтверждено"
	case models.StatusCompleted:
		return "🏁 Завершено"
	case models.StatusCancelled:
		return "❌ Отменено"
	default:
		return status
	}
}

// statusStyle возвращает стиль строки по статусу
func statusStyle(f *excelize.File, status string) (int, error) {
	var fill string
	switch status {
	case models.StatusConfirmed:
		fill = "#C6EFCE"
	case models.StatusCompleted:
		fill = "#DDEBF7"
	case models.StatusCancelled:
		fill = "#FFC7CE"
	default:
		fill = "#FFFFFF"
	}
	return f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Vertical: "top",
			WrapText: true,
		},
	})
}
