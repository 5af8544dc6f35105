package pagination

type Pagination struct {
	Offset int `form:"offset"`
	Limit  int `form:"limit,default=10" validate:"gte=1,lte=250"` // Min 1, Max 250
}
