// Package prompt renders the two completion prompts of the chat pipeline:
// one that turns a question into SQL, one that turns a result into an answer.
package prompt

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/HrmSqlChat/internal/catalog"
	"github.com/JonMunkholm/HrmSqlChat/internal/sqlexec"
	"github.com/JonMunkholm/HrmSqlChat/internal/sqlguard"
)

// BuildSQL constructs the SQL generation prompt. The question is appended as
// opaque text; it is never used as a format string or template.
func BuildSQL(question string, cat *catalog.Catalog) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, `Bạn là SQL Generation Engine cho hệ thống HRM. Nhiệm vụ: chuyển câu hỏi thành MỘT câu lệnh %s SELECT duy nhất.

YÊU CẦU ĐẦU RA:
1. Chỉ trả về code SQL trần (raw text). KHÔNG Markdown, KHÔNG giải thích, KHÔNG chú thích.
2. Chỉ dùng SELECT. Tuyệt đối không sinh INSERT, UPDATE, DELETE, DROP, ALTER, TRUNCATE hay bất kỳ lệnh thay đổi dữ liệu nào.
3. Chỉ dùng bảng và cột có trong SCHEMA bên dưới.
4. Chỉ trả về đúng chuỗi "%s" nếu:
   a) Câu hỏi hoàn toàn KHÔNG liên quan đến HRM / Dự án / Nhân sự
   b) Không ánh xạ được tới BẤT KỲ bảng nào trong schema
   Nếu câu hỏi còn mơ hồ nhưng có khả năng liên quan, hãy suy luận hợp lý nhất và sinh SQL an toàn.
`, dialect(cat), sqlguard.OffTopicSentinel)

	sb.WriteString("\nLUẬT NGHIỆP VỤ BẮT BUỘC:\n\n")
	sb.WriteString(cat.RulesText())

	sb.WriteString("\nSCHEMA (phiên bản ")
	sb.WriteString(cat.Version)
	sb.WriteString("):\n")
	sb.WriteString(cat.ToText())

	sb.WriteString("\nHỌC TỪ VÍ DỤ (FEW-SHOT):\n")
	for _, ex := range cat.Examples {
		sb.WriteString("\nUser: \"")
		sb.WriteString(ex.Question)
		sb.WriteString("\"\n")
		if ex.Reasoning != "" {
			sb.WriteString("Thought: ")
			sb.WriteString(ex.Reasoning)
			sb.WriteString("\n")
		}
		sb.WriteString("SQL: ")
		sb.WriteString(strings.TrimSpace(ex.SQL))
		sb.WriteString("\n")
	}

	sb.WriteString("\nCÂU HỎI:\n")
	sb.WriteString(question)
	sb.WriteString("\n\nSQL OUTPUT (Only SQL):\n")

	return sb.String()
}

func dialect(cat *catalog.Catalog) string {
	if cat.Dialect == "" {
		return "SQL"
	}
	return cat.Dialect
}

const answerPolicy = `YÊU CẦU TRẢ LỜI:

1. Nếu dữ liệu KHÔNG rỗng:
   - Trả lời thẳng vào vấn đề.
   - Liệt kê đầy đủ từng bản ghi nếu có nhiều bản ghi. Không cắt bớt danh sách.

2. Nếu dữ liệu rỗng ([] hoặc null):
   - Không được nói "Không tìm thấy dữ liệu" hay bất kỳ câu tương tự.
   - Được phép suy luận tích cực dựa trên logic nghiệp vụ thông thường.
   - Áp dụng cho các câu hỏi kiểm tra trạng thái (ví dụ: đi muộn, nghỉ làm, trễ hạn, chưa hoàn thành).
   - Ví dụ:
     + "Ai đi muộn?" -> "Tuyệt vời! Hôm nay không có nhân viên nào đi muộn."
     + "Ai nghỉ làm?" -> "Hôm nay toàn bộ nhân viên đều đi làm đầy đủ."
     + "Dự án nào trễ hạn?" -> "Hiện tại tất cả dự án đều đang đúng tiến độ."

3. Với dữ liệu thống kê (COUNT, SUM, AVG):
   - Nếu dữ liệu là một con số, con số đó chính là câu trả lời đầy đủ (kể cả khi bằng 0).
   - Trả lời trực tiếp, không được nói thiếu thông tin.

4. Khi SQL đã có điều kiện lọc:
   - Mặc định TẤT CẢ bản ghi trả về đều thỏa mãn điều kiện.
   - Không cần suy đoán thêm.

5. TRUNG THỰC VỚI DỮ LIỆU (BẮT BUỘC):
   - Không được tự ý loại bỏ bất kỳ bản ghi nào.
   - Không được bỏ qua các giá trị 0 (0% tiến độ là thông tin hợp lệ).
   - SQL trả về gì thì câu trả lời phải phản ánh đúng như vậy.

6. QUY TẮC ĐỊNH DẠNG (BẮT BUỘC):
   - Chỉ trả lời bằng văn bản thường.
   - TUYỆT ĐỐI KHÔNG dùng Markdown in đậm (hai dấu sao liền nhau).
   - Nếu cần liệt kê, dùng dấu "-" ở đầu dòng.

GIỌNG ĐIỆU:
Tự nhiên, thân thiện, chuyên nghiệp, giống trợ lý nội bộ doanh nghiệp.
`

// BuildAnswer constructs the prompt that phrases an execution result as a
// user-facing answer.
func BuildAnswer(question string, res sqlexec.Result) string {
	var sb strings.Builder

	sb.WriteString("Bạn là trợ lý HRM thông minh.\nNhiệm vụ: Đọc dữ liệu JSON và trả lời câu hỏi của người dùng.\n\n")
	sb.WriteString("THÔNG TIN:\n- Câu hỏi: \"")
	sb.WriteString(question)
	sb.WriteString("\"\n- Dữ liệu nhận được: ")
	sb.WriteString(res.Text())
	sb.WriteString("\n")

	switch res.Kind {
	case sqlexec.KindScalar:
		sb.WriteString("- Đây là một giá trị thống kê duy nhất: ")
		sb.WriteString(scalarText(res.Value))
		sb.WriteString("\n")
	case sqlexec.KindEmpty:
		sb.WriteString("- Dữ liệu rỗng: áp dụng mục 2 bên dưới.\n")
	case sqlexec.KindRows:
		fmt.Fprintf(&sb, "- Số bản ghi: %d\n", len(res.Rows))
	}
	if res.Truncated {
		fmt.Fprintf(&sb, "- Lưu ý: kết quả đã bị cắt, chỉ có %d bản ghi đầu tiên. Hãy nói rõ danh sách chưa đầy đủ, không được khẳng định đây là toàn bộ.\n", len(res.Rows))
	}

	sb.WriteString("\n")
	sb.WriteString(answerPolicy)
	sb.WriteString("\nTRẢ LỜI:\n")

	return sb.String()
}

func scalarText(v any) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%v", v)
}
