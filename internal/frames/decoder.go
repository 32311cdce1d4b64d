// Package frames file: internal/frames/decoder.go
package frames

import (
	"encoding/json"
	"fmt"
	"sort"

	"FrameRelay/internal/core/domain"
)

/*
================================================================
  后端响应的线上结构: {"results": {"A": {"status":200, "frames":[...]}}}
================================================================
*/

type wireField struct {
	Name   string            `json:"name"`
	Type   string            `json:"type"`
	Labels map[string]string `json:"labels"`
}

type wireSchema struct {
	RefID  string      `json:"refId"`
	Name   string      `json:"name"`
	Fields []wireField `json:"fields"`
}

type wireData struct {
	Values [][]any `json:"values"`
}

type wireFrame struct {
	Schema wireSchema `json:"schema"`
	Data   wireData   `json:"data"`
}

type wireResult struct {
	Status int         `json:"status"`
	Error  string      `json:"error"`
	Frames []wireFrame `json:"frames"`
}

type wireEnvelope struct {
	Results map[string]wireResult `json:"results"`
}

// Decode 把后端响应体展平为 Frame 序列，按 refId 升序排列以保证确定性。
// 任一结果携带错误时整体解码失败；输入不被修改。
func Decode(body []byte) ([]domain.Frame, error) {
	var envelope wireEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("解析后端响应 JSON 失败: %w", err)
	}

	refIDs := make([]string, 0, len(envelope.Results))
	for refID := range envelope.Results {
		refIDs = append(refIDs, refID)
	}
	sort.Strings(refIDs)

	frames := make([]domain.Frame, 0, len(refIDs))
	for _, refID := range refIDs {
		result := envelope.Results[refID]
		if result.Error != "" {
			return nil, fmt.Errorf("后端查询 '%s' 返回错误: %s", refID, result.Error)
		}
		for _, wf := range result.Frames {
			frame := domain.Frame{
				RefID:  wf.Schema.RefID,
				Name:   wf.Schema.Name,
				Values: wf.Data.Values,
			}
			if frame.RefID == "" {
				frame.RefID = refID
			}
			for _, field := range wf.Schema.Fields {
				frame.Fields = append(frame.Fields, domain.Field{
					Name:   field.Name,
					Type:   field.Type,
					Labels: field.Labels,
				})
			}
			frames = append(frames, frame)
		}
	}
	return frames, nil
}
