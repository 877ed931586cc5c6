/*
Package region resolves free-text region names to city/county codes and
answers pairwise distances between them.

PURPOSE:
  Travel allowance is keyed to the distance an instructor drives on a
  training day. Instructors and institutions record their location as free
  text ("경기도 남양주시 화도읍", "수원"), so the first step is mapping that
  text onto one of the 31 city/county codes of the operating province. The
  second step is a distance lookup between codes.

KEY CONCEPTS:
  - Code: One of the 31 canonical city/county codes
  - Region: A resolved or unresolved location (home or institution)
  - Resolver: Name → Code matching (exact, prefix, substring)
  - DistanceMatrix: Symmetric (Code, Code) → km table
  - DistanceProvider: Uniform interface over matrix, haversine and live API

MISSING DATA:
  A pair absent from the matrix resolves to 0 km with Found=false. The
  caller records a missing_distance warning. 0 km yields no travel
  allowance, so gaps under-pay rather than over-pay.

SEE ALSO:
  - resolver.go: Name matching
  - matrix.go: Distance table
  - provider.go: DistanceProvider implementations
  - travel/route.go: Consumer of DistanceProvider
*/
package region

// =============================================================================
// CITY/COUNTY CODES
// =============================================================================

// Code identifies a city or county.
type Code string

const (
	Suwon       Code = "SUWON"
	Seongnam    Code = "SEONGNAM"
	Uijeongbu   Code = "UIJEONGBU"
	Anyang      Code = "ANYANG"
	Bucheon     Code = "BUCHEON"
	Gwangmyeong Code = "GWANGMYEONG"
	Pyeongtaek  Code = "PYEONGTAEK"
	Dongducheon Code = "DONGDUCHEON"
	Ansan       Code = "ANSAN"
	Goyang      Code = "GOYANG"
	Gwacheon    Code = "GWACHEON"
	Guri        Code = "GURI"
	Namyangju   Code = "NAMYANGJU"
	Osan        Code = "OSAN"
	Siheung     Code = "SIHEUNG"
	Gunpo       Code = "GUNPO"
	Uiwang      Code = "UIWANG"
	Hanam       Code = "HANAM"
	Yongin      Code = "YONGIN"
	Paju        Code = "PAJU"
	Icheon      Code = "ICHEON"
	Anseong     Code = "ANSEONG"
	Gimpo       Code = "GIMPO"
	Hwaseong    Code = "HWASEONG"
	Gwangju     Code = "GWANGJU"
	Yangju      Code = "YANGJU"
	Pocheon     Code = "POCHEON"
	Yeoju       Code = "YEOJU"
	Yeoncheon   Code = "YEONCHEON"
	Gapyeong    Code = "GAPYEONG"
	Yangpyeong  Code = "YANGPYEONG"
)

// CityCounty is the canonical record for a code.
type CityCounty struct {
	Code Code
	Name string // canonical name, e.g. "수원시"
	Lat  float64
	Lng  float64
}

// cityCounties lists every code with the coordinates of its city hall.
var cityCounties = []CityCounty{
	{Suwon, "수원시", 37.2636, 127.0286},
	{Seongnam, "성남시", 37.4200, 127.1267},
	{Uijeongbu, "의정부시", 37.7381, 127.0338},
	{Anyang, "안양시", 37.3943, 126.9568},
	{Bucheon, "부천시", 37.5034, 126.7660},
	{Gwangmyeong, "광명시", 37.4786, 126.8646},
	{Pyeongtaek, "평택시", 36.9921, 127.1129},
	{Dongducheon, "동두천시", 37.9036, 127.0606},
	{Ansan, "안산시", 37.3219, 126.8309},
	{Goyang, "고양시", 37.6584, 126.8320},
	{Gwacheon, "과천시", 37.4292, 126.9876},
	{Guri, "구리시", 37.5943, 127.1296},
	{Namyangju, "남양주시", 37.6360, 127.2165},
	{Osan, "오산시", 37.1498, 127.0772},
	{Siheung, "시흥시", 37.3800, 126.8029},
	{Gunpo, "군포시", 37.3617, 126.9352},
	{Uiwang, "의왕시", 37.3448, 126.9683},
	{Hanam, "하남시", 37.5393, 127.2149},
	{Yongin, "용인시", 37.2411, 127.1776},
	{Paju, "파주시", 37.7599, 126.7802},
	{Icheon, "이천시", 37.2720, 127.4350},
	{Anseong, "안성시", 37.0080, 127.2797},
	{Gimpo, "김포시", 37.6153, 126.7156},
	{Hwaseong, "화성시", 37.1995, 126.8312},
	{Gwangju, "광주시", 37.4292, 127.2551},
	{Yangju, "양주시", 37.7853, 127.0458},
	{Pocheon, "포천시", 37.8949, 127.2003},
	{Yeoju, "여주시", 37.2983, 127.6372},
	{Yeoncheon, "연천군", 38.0966, 127.0747},
	{Gapyeong, "가평군", 37.8315, 127.5105},
	{Yangpyeong, "양평군", 37.4917, 127.4875},
}

var byCode = func() map[Code]CityCounty {
	m := make(map[Code]CityCounty, len(cityCounties))
	for _, c := range cityCounties {
		m[c.Code] = c
	}
	return m
}()

// All returns every city/county in canonical order.
func All() []CityCounty {
	out := make([]CityCounty, len(cityCounties))
	copy(out, cityCounties)
	return out
}

// Lookup returns the canonical record for a code.
func Lookup(code Code) (CityCounty, bool) {
	c, ok := byCode[code]
	return c, ok
}

// Valid reports whether code is one of the canonical codes.
func (c Code) Valid() bool {
	_, ok := byCode[c]
	return ok
}

// Name returns the canonical name, or the raw code when unknown.
func (c Code) Name() string {
	if cc, ok := byCode[c]; ok {
		return cc.Name
	}
	return string(c)
}

// =============================================================================
// REGION
// =============================================================================

// Region is a location as recorded on an instructor or institution.
// Code is nil until the free-text CityCounty has been resolved.
type Region struct {
	CityCounty string
	Code       *Code
	Address    string
	Lat        *float64
	Lng        *float64
}

// Label is the text used in route descriptions.
func (r Region) Label() string {
	if r.CityCounty != "" {
		return r.CityCounty
	}
	if r.Code != nil {
		return r.Code.Name()
	}
	return r.Address
}

// Resolved reports whether a code is attached.
func (r Region) Resolved() bool { return r.Code != nil && r.Code.Valid() }
