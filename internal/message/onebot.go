package message

import "strconv"

// ToOneBot 编码为 OneBot 11 消息段数组
func (c Chain) ToOneBot() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(c))
	for _, seg := range c {
		switch seg.Type {
		case TypeText:
			if seg.Text == "" {
				continue
			}
			out = append(out, map[string]interface{}{
				"type": "text",
				"data": map[string]interface{}{"text": seg.Text},
			})
		case TypeMention:
			out = append(out, map[string]interface{}{
				"type": "at",
				"data": map[string]interface{}{"qq": seg.UserID},
			})
		default:
			data := seg.Data
			if data == nil {
				data = map[string]interface{}{}
			}
			out = append(out, map[string]interface{}{
				"type": string(seg.Type),
				"data": data,
			})
		}
	}
	return out
}

// FromOneBot 从 OneBot 消息段数组解码，无法识别的段保留为不透明段
func FromOneBot(segments []interface{}) Chain {
	chain := make(Chain, 0, len(segments))
	for _, item := range segments {
		segMap, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		segType, _ := segMap["type"].(string)
		data, _ := segMap["data"].(map[string]interface{})

		switch segType {
		case "text":
			text, _ := data["text"].(string)
			chain = append(chain, Text(text))
		case "at":
			switch qq := data["qq"].(type) {
			case string:
				chain = append(chain, Mention(qq))
			case float64:
				chain = append(chain, Mention(strconv.FormatInt(int64(qq), 10)))
			case int64:
				chain = append(chain, Mention(strconv.FormatInt(qq, 10)))
			}
		case "":
			continue
		default:
			chain = append(chain, Raw(segType, data))
		}
	}
	return chain
}
