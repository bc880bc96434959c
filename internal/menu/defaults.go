package menu

// Placeholders written when a field cannot be extracted from the page.
const (
	NoName          = "Нет названия"
	NoDescription   = "Нет описания"
	NoPrice         = "Нет цены"
	NoComposition   = "Нет состава"
	NoAllergens     = "Аллергены: отсутствуют"
	NoPhoto         = "Нет фото"
	NoData          = "Нет данных"
	UnknownCategory = "Неизвестная категория"
	NoVeranda       = "Без летней веранды"
	NoAnimation     = "Без детской анимации"
	NoImage         = "Нет изображения"
	NoAddress       = "Нет адреса"
	NoMetro         = "Нет данных о метро"
	NoWorkTime      = "Нет данных о времени работы"
	NoContacts      = "Нет контактов"
	NoVineCard      = "Нет данных о винной карте"
)

// Nutrition labels as they appear on item pages.
const (
	NutritionCalories      = "Ккал"
	NutritionProteins      = "Белки"
	NutritionFats          = "Жиры"
	NutritionCarbohydrates = "Углеводы"
	NutritionWeight        = "Вес"
)
