package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"fieldcrew/backend/internal/model"
	"fieldcrew/backend/internal/repository"
	"fieldcrew/backend/pkg/dateutil"
	pkgerrors "fieldcrew/backend/pkg/errors"
)

// 导出排班看板的最大天数
const maxBoardDays = 62

// ── 导出模块业务错误 ──

var (
	ErrExportRangeTooLong = pkgerrors.Validation(fmt.Sprintf("导出区间不能超过 %d 天", maxBoardDays))
	ErrExportRangeInvalid = pkgerrors.Validation("导出结束日期不能早于开始日期")
	ErrExportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportCrewBoard 派工看板：每个工单一行，每天一列，负责人以 ★ 标记
	ExportCrewBoard(ctx context.Context, from, to string) (*bytes.Buffer, string, error)
	// ExportReconciliation 员工某周的工时明细与核对差异
	ExportReconciliation(ctx context.Context, username, weekEnding string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

// ═══════════════════════════════════════════════════════════
// ExportCrewBoard
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 标题行：派工看板 from ~ to
//   - 表头：| 工单 | 状态 | 01-12 周一 | 01-13 周二 | ...
//   - 单元格：★负责人、其他成员（换行分隔），无人为 "-"

func (s *exportService) ExportCrewBoard(ctx context.Context, fromStr, toStr string) (*bytes.Buffer, string, error) {
	from, err := dateutil.ParseDate(fromStr)
	if err != nil {
		return nil, "", pkgerrors.Wrap(ErrInvalidDate, err)
	}
	to, err := dateutil.ParseDate(toStr)
	if err != nil {
		return nil, "", pkgerrors.Wrap(ErrInvalidDate, err)
	}
	days, err := dateutil.DateRange(from, to)
	if err != nil {
		return nil, "", ErrExportRangeInvalid
	}
	if len(days) > maxBoardDays {
		return nil, "", ErrExportRangeTooLong
	}

	// 1. 查询区间内排班日（含工单与人员）
	dates, err := s.repo.ScheduleDate.ListInRange(ctx, from, to)
	if err != nil {
		s.logger.Error("查询排班日失败", zap.Error(err))
		return nil, "", err
	}

	// 2. 构建索引: "jobID:date" → cellText，并收集工单
	cellIndex := make(map[string]string)
	jobs := make(map[string]*model.Job)
	for i := range dates {
		sd := &dates[i]
		if len(sd.Crew) == 0 {
			continue
		}
		if sd.Job != nil {
			jobs[sd.JobID] = sd.Job
		} else if _, ok := jobs[sd.JobID]; !ok {
			jobs[sd.JobID] = &model.Job{JobID: sd.JobID, Title: sd.JobID}
		}
		cellIndex[sd.JobID+":"+dateutil.Format(sd.WorkDate)] = crewCellText(sd.Crew)
	}

	jobList := make([]*model.Job, 0, len(jobs))
	for _, j := range jobs {
		jobList = append(jobList, j)
	}
	sort.Slice(jobList, func(i, j int) bool {
		if jobList[i].Title != jobList[j].Title {
			return jobList[i].Title < jobList[j].Title
		}
		return jobList[i].JobID < jobList[j].JobID
	})

	// 3. 生成 Excel
	f := excelize.NewFile()
	defer f.Close()

	sheetName := "派工看板"
	idx, _ := f.NewSheet(sheetName)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	f.SetColWidth(sheetName, "A", "A", 28)
	f.SetColWidth(sheetName, "B", "B", 12)
	for i := range days {
		col := colName(2 + i)
		f.SetColWidth(sheetName, col, col, 16)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	// 标题行
	f.SetCellValue(sheetName, "A1", fmt.Sprintf("派工看板 %s ~ %s", fromStr, toStr))
	f.MergeCell(sheetName, "A1", cell(colName(1+len(days)), 1))
	f.SetCellStyle(sheetName, "A1", "A1", headerStyle)

	// 表头
	row := 2
	f.SetCellValue(sheetName, cell("A", row), "工单")
	f.SetCellValue(sheetName, cell("B", row), "状态")
	for i, d := range days {
		f.SetCellValue(sheetName, cell(colName(2+i), row), fmt.Sprintf("%s %s", d.Format("01-02"), weekdayNames[d.Weekday()]))
	}
	f.SetCellStyle(sheetName, cell("A", row), cell(colName(1+len(days)), row), headerStyle)

	// 数据行
	row = 3
	for _, j := range jobList {
		f.SetCellValue(sheetName, cell("A", row), j.Title)
		f.SetCellValue(sheetName, cell("B", row), j.Status)
		for i, d := range days {
			text, ok := cellIndex[j.JobID+":"+dateutil.Format(d)]
			if !ok {
				text = "-"
			}
			f.SetCellValue(sheetName, cell(colName(2+i), row), text)
		}
		row++
	}
	if row > 3 {
		f.SetCellStyle(sheetName, "C3", cell(colName(1+len(days)), row-1), wrapStyle)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("派工看板_%s_%s.xlsx", fromStr, toStr)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// ExportReconciliation
// ═══════════════════════════════════════════════════════════
//
// Sheet "工时明细"：| 日期 | 工单 | 工时 | 备注 | 锁定 |
// Sheet "核对差异"：| 日期 | 工单 | 类型 | 计划工时 | 实际工时 | 差值 |

func (s *exportService) ExportReconciliation(ctx context.Context, username, weekEndingStr string) (*bytes.Buffer, string, error) {
	weekEnding, err := dateutil.ParseDate(weekEndingStr)
	if err != nil {
		return nil, "", pkgerrors.Wrap(ErrInvalidDate, err)
	}
	if !dateutil.IsSunday(weekEnding) {
		return nil, "", ErrWeekEndingNotSunday
	}

	sub, err := s.repo.Timecard.GetByUserWeek(ctx, username, weekEnding)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", ErrSubmissionNotFound
		}
		s.logger.Error("查询工时提交失败", zap.Error(err))
		return nil, "", err
	}
	entries, err := s.repo.TimeEntry.ListByUsernameInRange(ctx, username, dateutil.WeekStart(weekEnding), weekEnding)
	if err != nil {
		s.logger.Error("查询工时记录失败", zap.Error(err))
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
	})

	// 工时明细
	entrySheet := "工时明细"
	idx, _ := f.NewSheet(entrySheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")
	writeHeader(f, entrySheet, headerStyle, "日期", "工单", "工时", "备注", "锁定")
	var total float64
	for i, e := range entries {
		row := i + 2
		f.SetCellValue(entrySheet, cell("A", row), dateutil.Format(e.WorkDate))
		f.SetCellValue(entrySheet, cell("B", row), e.JobID)
		f.SetCellValue(entrySheet, cell("C", row), e.HoursWorked)
		f.SetCellValue(entrySheet, cell("D", row), e.Notes)
		f.SetCellValue(entrySheet, cell("E", row), lockedLabel(e.Locked))
		total += e.HoursWorked
	}
	totalRow := len(entries) + 2
	f.SetCellValue(entrySheet, cell("A", totalRow), "合计")
	f.SetCellValue(entrySheet, cell("C", totalRow), total)

	// 核对差异
	diffSheet := "核对差异"
	f.NewSheet(diffSheet)
	writeHeader(f, diffSheet, headerStyle, "日期", "工单", "类型", "计划工时", "实际工时", "差值")
	for i, c := range sub.Contradictions {
		row := i + 2
		f.SetCellValue(diffSheet, cell("A", row), dateutil.Format(c.WorkDate))
		f.SetCellValue(diffSheet, cell("B", row), c.JobID)
		f.SetCellValue(diffSheet, cell("C", row), contradictionLabels[c.Type])
		f.SetCellValue(diffSheet, cell("D", row), c.ScheduledHours)
		f.SetCellValue(diffSheet, cell("E", row), c.ActualHours)
		f.SetCellValue(diffSheet, cell("F", row), c.Difference)
	}
	summaryRow := len(sub.Contradictions) + 3
	f.SetCellValue(diffSheet, cell("A", summaryRow), fmt.Sprintf("状态：%s，差异 %d 条，补录排班 %d 条",
		sub.Status, sub.ContradictionsFound, sub.SchedulesCreated))

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("工时核对_%s_%s.xlsx", username, weekEndingStr)
	return buf, filename, nil
}

// ── 辅助函数 ──

var weekdayNames = [...]string{"周日", "周一", "周二", "周三", "周四", "周五", "周六"}

var contradictionLabels = map[string]string{
	model.ContradictionMissingSchedule:  "有工时无排班",
	model.ContradictionMissingTimeEntry: "有排班无工时",
	model.ContradictionHoursMismatch:    "工时不一致",
}

// crewCellText 负责人在前并以 ★ 标记
func crewCellText(crew []model.CrewAssignment) string {
	names := make([]string, 0, len(crew))
	for _, c := range crew {
		if c.IsLead {
			names = append([]string{"★" + c.Username}, names...)
			continue
		}
		names = append(names, c.Username)
	}
	return strings.Join(names, "\n")
}

func writeHeader(f *excelize.File, sheet string, style int, titles ...string) {
	for i, t := range titles {
		f.SetCellValue(sheet, cell(colName(i), 1), t)
	}
	f.SetCellStyle(sheet, "A1", cell(colName(len(titles)-1), 1), style)
}

func lockedLabel(locked bool) string {
	if locked {
		return "是"
	}
	return "否"
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
