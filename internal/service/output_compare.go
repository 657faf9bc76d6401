package service

import (
	"collabhub_backend/internal/model"
	"math"
	"strconv"
	"strings"
)

const defaultFloatTolerance = 1e-9

// CompareOutput 按测试用例声明的方式比较实际输出；缺省为精确比较（仅统一换行符）
func CompareOutput(tc model.TestCase, actual string) bool {
	expected := normalizeNewlines(tc.ExpectedOutput)
	actual = normalizeNewlines(actual)

	switch tc.Comparison {
	case model.CompareTrim:
		return trimOutput(expected) == trimOutput(actual)
	case model.CompareFloat:
		return compareFloatTokens(expected, actual, tc.Tolerance)
	default:
		return expected == actual
	}
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// trimOutput 去掉每行行尾空白和末尾空行
func trimOutput(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

func compareFloatTokens(expected, actual string, tolerance float64) bool {
	if tolerance <= 0 {
		tolerance = defaultFloatTolerance
	}
	exp := strings.Fields(expected)
	act := strings.Fields(actual)
	if len(exp) != len(act) {
		return false
	}
	for i := range exp {
		ef, errE := strconv.ParseFloat(exp[i], 64)
		af, errA := strconv.ParseFloat(act[i], 64)
		if errE == nil && errA == nil {
			if math.IsNaN(ef) || math.IsNaN(af) || math.Abs(ef-af) > tolerance {
				return false
			}
			continue
		}
		if exp[i] != act[i] {
			return false
		}
	}
	return true
}
