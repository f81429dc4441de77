package book

type AddBookReq struct {
	Title  string `json:"title"`
	Author string `json:"author" validate:"required"`
	ISBN   string `json:"isbn" validate:"required"`
	Copies int64  `json:"copies" validate:"required,gt=0"`
}
