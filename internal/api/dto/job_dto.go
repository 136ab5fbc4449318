package dto

type UploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
	Folder      string `json:"folder"`
	ExpiresSec  int    `json:"expires_sec"`
}

type UploadURLResponse struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	S3Key   string            `json:"s3_key"`
}

type CreateJobRequest struct {
	S3Key         string   `json:"s3_key" binding:"required"`
	Axis          string   `json:"axis"`
	BaseOffsetMM  *float64 `json:"base_offset_mm"`
	MoldPaddingMM *float64 `json:"mold_padding_mm"`
}

type CreateJobResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type ParamsDTO struct {
	Axis          string  `json:"axis"`
	BaseOffsetMM  float64 `json:"base_offset_mm"`
	MoldPaddingMM float64 `json:"mold_padding_mm"`
}

type JobResponse struct {
	ID         string            `json:"id"`
	Status     string            `json:"status"`
	CreatedAt  string            `json:"created_at"`
	UpdatedAt  string            `json:"updated_at"`
	InputKey   string            `json:"input_key"`
	Params     ParamsDTO         `json:"params"`
	OutputKeys map[string]string `json:"output_keys,omitempty"`
	Error      *string           `json:"error"`
}

type DownloadsResponse struct {
	Prosthetic string `json:"prosthetic"`
	Mold       string `json:"mold"`
	ExpiresSec int    `json:"expires_sec"`
}
