package series

type ListSeriesQuery struct {
	Limit  int     `query:"limit" json:"limit,omitempty" default:"24" validate:"min=1,max=100"`
	Offset int     `query:"offset" json:"offset,omitempty" validate:"min=0"`
	Genre  *string `query:"genre" json:"genre,omitempty" validate:"omitempty,max=100"`
	Search *string `query:"search" json:"search,omitempty" validate:"omitempty,max=100"`
}
